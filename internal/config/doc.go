// Package config loads the streamer YAML configuration.
//
// ${VAR} references are expanded from the environment before parsing, so
// credentials can stay in the environment or a .env file:
//
//	api:
//	  api_key: ${BFX_API_KEY}
//	  api_secret: ${BFX_API_SECRET}
package config
