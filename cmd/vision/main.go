// vision is the command-line front end of the born vision toolkit.
//
//	vision [klog flags] <command> [command flags]
//
// Commands:
//
//	version      print the version
//	zoo          list or fetch pretrained weights
//	retrain      retrain the SqueezeNet head on synthetic data
//	backbone     print the SSD VGG feature map shapes
//	subtraction  run the differencing operator and report timings
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"version", "print the version", runVersion},
	{"zoo", "list or fetch pretrained weights", runZoo},
	{"retrain", "retrain the SqueezeNet head on synthetic data", runRetrain},
	{"backbone", "print the SSD VGG feature map shapes", runBackbone},
	{"subtraction", "run the differencing operator and report timings", runSubtraction},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "born vision %s\n\nUsage: vision [flags] <command> [command flags]\n\nCommands:\n", version)
	for _, c := range commands {
		fmt.Fprintf(out, "  %-12s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	name := flag.Arg(0)
	for _, c := range commands {
		if c.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err := c.run(ctx, flag.Args()[1:])
		stop()
		if err != nil {
			klog.Errorf("%s: %+v", name, err)
			klog.Flush()
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "vision: unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func runVersion(context.Context, []string) error {
	fmt.Printf("born vision %s\n", version)
	return nil
}
