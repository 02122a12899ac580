// Command schema emits the JSON schema for the feedlens YAML configuration,
// consumed by editors and CI for config validation.
package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/feedlens/feedlens/pkg/config"
)

func main() {
	out := "schema.json"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}

	schema := jsonschema.Reflect(&config.Config{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("marshal schema: %v", err)
	}
	data = append(data, '\n')

	if out == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			log.Fatalf("write schema to stdout: %v", err)
		}
		return
	}
	if err := os.WriteFile(out, data, 0o600); err != nil { //nolint:gosec // schema file is not sensitive
		log.Fatalf("write %s: %v", out, err)
	}
	log.Printf("config schema written to %s", out)
}
