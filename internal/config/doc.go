// Package config provides configuration loading for seafhttpd.
//
// Configuration is optionally stored in seafhttpd.json in the process's
// working directory; command-line flags (bound in cmd/seafhttpd) take
// precedence over the file, which in turn overrides New()'s built-in
// defaults. No environment variables are read.
//
// # Configuration File Structure
//
//	{
//	  "address": ":8089",
//	  "tempDir": "/tmp/seafhttp",
//	  "serviceUrl": "https://seaf.example.com",
//	  "s3": {
//	    "bucket": "seafhttp-prod",
//	    "region": "us-east-1"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("listening on", cfg.Address)
package config
