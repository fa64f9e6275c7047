package main

import (
	"fmt"
	"os"
)

const usage = `usage: cdnflow <command> [flags]

commands:
  serve     start the HTTP panel API (default)
  mcp       serve MCP tools over stdio
  backup    write a backup of every saved workflow and exit
  install   write ~/.cdnflow/settings.json and fetch helper tools
  update    replace this binary with the latest release
  version   print the version
`

func main() {
	cmd := "serve"
	var args []string
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe()
	case "mcp":
		err = runMCP()
	case "backup":
		err = runBackup(args)
	case "install":
		err = runInstall(args)
	case "update":
		err = runUpdate(args)
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
