// Command rain-gauge counts tipping-bucket rain gauge tips, attributes them
// to hour and day buckets and checkpoints the day total to non-volatile
// storage so a restart resumes it.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
