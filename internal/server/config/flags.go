package config

import (
	"flag"
	"os"

	"uplink/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   stream token HMAC secret key
//	-w string   webhook shared secret
//	-m string   admin token
//	-u string   public base URL
//	-t string   transcode worker URL
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Storage accounts, TTLs and sweep settings are only configurable through
//     the JSON overlay; they change rarely and would bloat the flag surface.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-w", "-m", "-u", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "stream token secret key")
	fs.StringVar(&config.WebhookSecret, "w", config.WebhookSecret, "webhook shared secret")
	fs.StringVar(&config.AdminToken, "m", config.AdminToken, "admin token")
	fs.StringVar(&config.PublicBaseURL, "u", config.PublicBaseURL, "public base URL")
	fs.StringVar(&config.TranscoderURL, "t", config.TranscoderURL, "transcode worker URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
