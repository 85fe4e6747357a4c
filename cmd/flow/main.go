// Package main provides the flow CLI.
//
// Usage:
//
//	flow version
//	flow init -chain "reverse,scale:2,roll:-1,nsc" -dim 7 -seed 0 -out flow.safetensors
//	flow init -chain "rsc:4" -dim 7 -out flow.safetensors.zst   (zstd-compressed)
//	flow inspect -in flow.safetensors
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/born-ml/flow/loader"
	"github.com/born-ml/flow/random"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		return
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("Born Flow %s\n", version)
	case "init":
		if err := runInit(os.Args[2:], os.Stdout); err != nil {
			log.Fatalf("init: %v", err)
		}
	case "inspect":
		if err := runInspect(os.Args[2:], os.Stdout); err != nil {
			log.Fatalf("inspect: %v", err)
		}
	default:
		usage(os.Stderr)
		os.Exit(2)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Born Flow - normalizing flow bijectors for Go")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version    Show version")
	fmt.Fprintln(w, "  init       Initialize a chain and save its parameters")
	fmt.Fprintln(w, "  inspect    List the arrays stored in a parameter file")
}

func runInit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	chainSpec := fs.String("chain", "", "Comma-separated bijectors, e.g. \"reverse,scale:2,roll:-1,nsc\"")
	dim := fs.Int("dim", 0, "Number of input columns")
	seed := fs.Uint64("seed", 0, "Random seed")
	outPath := fs.String("out", "flow.safetensors", "Output parameter file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := parseChain(*chainSpec, *dim)
	if err != nil {
		return err
	}
	params, _, _, err := flow.Init(random.NewKey(*seed), *dim)
	if err != nil {
		return err
	}

	id, err := loader.SaveParams(*outPath, params, map[string]string{
		"chain": flow.String(),
		"dim":   fmt.Sprint(*dim),
		"seed":  fmt.Sprint(*seed),
	})
	if err != nil {
		return err
	}

	stat, err := os.Stat(*outPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", flow)
	fmt.Fprintf(out, "params_id: %s\n", id)
	fmt.Fprintf(out, "parameters: %s (%s on disk)\n",
		humanize.Comma(int64(params.NumElements())), humanize.Bytes(uint64(stat.Size()))) //nolint:gosec // G115: file size is non-negative
	return nil
}

func runInspect(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	inPath := fs.String("in", "", "Parameter file to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return fmt.Errorf("missing -in")
	}

	r, err := loader.Open(*inPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()

	meta := r.Metadata()
	for _, key := range []string{"chain", loader.MetaParamsID, loader.MetaSkeleton} {
		if v, ok := meta[key]; ok {
			fmt.Fprintf(out, "%s: %s\n", key, v)
		}
	}

	var total int64
	for _, name := range r.TensorNames() {
		info, err := r.TensorInfo(name)
		if err != nil {
			return err
		}
		n := int64(1)
		for _, d := range info.Shape {
			n *= int64(d)
		}
		total += n
		fmt.Fprintf(out, "  %-32s %-4s %v\n", name, info.DType, info.Shape)
	}
	fmt.Fprintf(out, "%d arrays, %s parameters, %s of data\n",
		len(r.TensorNames()), humanize.Comma(total), humanize.Bytes(uint64(r.DataSize()))) //nolint:gosec // G115: data size is non-negative
	return nil
}
