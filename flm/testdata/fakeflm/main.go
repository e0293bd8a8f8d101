// Command fakeflm imitates the runtime CLI for gateway tests.
//
// Behaviour is tuned with environment variables:
//
//	FAKEFLM_VERSION       text printed by --version (default "FLM v0.9.9")
//	FAKEFLM_VERSION_EXIT  exit code of --version
//	FAKEFLM_INSTALLED     comma separated installed models
//	FAKEFLM_AVAILABLE     comma separated models that are not installed
//	FAKEFLM_IGNORE_EXIT   when "1", serve ignores the exit command
//	FAKEFLM_SERVE_EXIT    when set, serve exits right after its banner with this code
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: flm <command>")
		os.Exit(2)
	}

	switch args[0] {
	case "--version":
		if code := os.Getenv("FAKEFLM_VERSION_EXIT"); code != "" {
			n, _ := strconv.Atoi(code)
			fmt.Fprintln(os.Stderr, "version unavailable")
			os.Exit(n)
		}
		v := os.Getenv("FAKEFLM_VERSION")
		if v == "" {
			v = "FLM v0.9.9"
		}
		fmt.Println(v)
	case "list":
		list(args[1:])
	case "pull":
		pull(args[1:])
	case "remove":
		remove(args[1:])
	case "serve":
		serve(args[1:])
	case "run":
		run(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		os.Exit(2)
	}
}

func split(env string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(env), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func list(args []string) {
	filter := "all"
	for i := 0; i < len(args); i++ {
		if args[i] == "--filter" && i+1 < len(args) {
			filter = args[i+1]
		}
	}
	var names []string
	switch filter {
	case "installed":
		names = split("FAKEFLM_INSTALLED")
	case "not-installed":
		names = split("FAKEFLM_AVAILABLE")
	default:
		names = append(split("FAKEFLM_INSTALLED"), split("FAKEFLM_AVAILABLE")...)
	}
	fmt.Println("Models:")
	for _, n := range names {
		fmt.Printf("  - %s\n", n)
	}
}

func pull(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "missing model name")
		os.Exit(2)
	}
	name := args[0]
	if strings.HasPrefix(name, "bad") {
		fmt.Fprintf(os.Stderr, "model not found: %s\n", name)
		os.Exit(1)
	}
	for _, pct := range []int{0, 50, 100} {
		fmt.Printf("Downloading %s %d%%\r", name, pct)
	}
	fmt.Printf("\nPulled %s\n", name)
}

func remove(args []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "bad") {
		fmt.Fprintln(os.Stderr, "cannot remove model")
		os.Exit(1)
	}
	fmt.Printf("Removed %s\n", args[0])
}

func serve(args []string) {
	fmt.Printf("args: %s\n", strings.Join(args, " "))
	fmt.Fprintln(os.Stderr, "loading weights")
	fmt.Println("Loading model...")
	if code := os.Getenv("FAKEFLM_SERVE_EXIT"); code != "" {
		n, _ := strconv.Atoi(code)
		os.Exit(n)
	}
	fmt.Println("Enter 'exit' to stop the server:")

	if os.Getenv("FAKEFLM_IGNORE_EXIT") == "1" {
		for {
			time.Sleep(time.Hour)
		}
	}

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "exit" {
			fmt.Println("Stopping server...")
			return
		}
	}
}

func run(args []string) {
	fmt.Fprintln(os.Stderr, "warming up")
	fmt.Println("Loading model...")
	fmt.Print(">>> ")

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		switch text {
		case "exit", "/bye":
			return
		case "/fail":
			os.Exit(3)
		}
		fmt.Printf("echo: %s\n", text)
		fmt.Print(">>> ")
	}
}
