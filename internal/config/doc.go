// Package config provides configuration management for the editor service.
//
// Configuration is loaded from environment variables using the env package.
// All values have defaults suitable for local development: an in-memory
// draft store and event bus, and a workflow service on localhost:8000.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
