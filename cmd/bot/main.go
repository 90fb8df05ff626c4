// Command bot announces the highest and the fastest flight in the air.
//
// Typical first deployment:
//
//	bot authorize altitude      # once per category, opens the X consent flow
//	bot authorize groundspeed
//	bot run                     # schedulers (+ admin API if ADMIN_ADDR is set)
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
