// Package config builds the immutable serve-dev configuration.
//
// Values come from three layers, highest precedence first:
//
//  1. flags set explicitly on the command line
//  2. the JSON config file (./serve.json unless --config says otherwise)
//  3. built-in defaults
//
// The JSON file accepts the flag names as keys plus the static-serving
// options understood by the file server:
//
//	{
//	  "public": "dist",
//	  "watch": ["src/**/*.js", "styles/*.css"],
//	  "make": ["scripts", "styles"],
//	  "cleanUrls": true,
//	  "directoryListing": false,
//	  "rewrites": [{ "source": "/app/**", "destination": "/index.html" }],
//	  "headers": [{ "source": "**/*.js", "headers": [{ "key": "X-Dev", "value": "1" }] }]
//	}
//
// A missing config file is not an error. watch and make accept a string or a
// list. Watch patterns and build targets are paired by position into Bindings.
package config
