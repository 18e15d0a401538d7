package main

import (
	"flag"
	"log"

	"github.com/danmuck/rdmsession/internal/config"
)

func defaultPath(kind string) string {
	switch kind {
	case "consumer":
		return "cmd/consumerctl/config.toml"
	case "provider":
		return "cmd/providerctl/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", "consumer", "config kind: consumer|provider")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		var err error
		switch *kind {
		case "consumer":
			_, err = config.LoadConsumerConfig(path)
		case "provider":
			_, err = config.LoadProviderConfig(path)
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
