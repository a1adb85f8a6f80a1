package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"chartguard/internal/core/phigate"
	"chartguard/internal/core/rulepack"
)

// chartguard-gate classifies text from a flag, a file, or stdin and prints
// the verdict as JSON. Exit code 2 signals a RED verdict so scripts can gate
// on it directly
func main() {
	var (
		text  = flag.String("text", "", "text to classify (overrides -file/stdin)")
		file  = flag.String("file", "", "read text from file")
		rules = flag.String("rules", "", "rule pack file (json or yaml), embedded defaults when empty")
	)
	flag.Parse()

	var pack *rulepack.Pack
	var err error
	if *rules != "" {
		pack, err = rulepack.LoadFile(*rules)
	} else {
		pack, err = rulepack.Load()
	}
	if err != nil {
		log.Fatalf("rule pack: %v", err)
	}

	input := *text
	if input == "" && *file != "" {
		b, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read %s: %v", *file, err)
		}
		input = string(b)
	}
	if input == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("read stdin: %v", err)
		}
		input = string(b)
	}
	if input == "" {
		log.Fatal("no input: pass -text, -file, or pipe stdin")
	}

	v := phigate.New(pack).Analyze(input)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode: %v", err)
	}
	if v.Status == phigate.StatusRed {
		os.Exit(2)
	}
}
