// ABOUTME: Entry point for the mural board CLI
// ABOUTME: Routes to session, board and config commands based on arguments
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/harperreed/mural/cli"
	"github.com/harperreed/mural/db"
)

const version = "0.1.0"

func main() {
	// Load .env if present; real env vars win
	_ = godotenv.Load()

	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/mural/boards.db)")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	// Handle version flag
	if *showVersion {
		fmt.Printf("mural version %s\n", version)
		os.Exit(0)
	}

	// Get remaining args after flags
	args := flag.Args()

	// If no command specified, show usage
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	// Route to top-level command
	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "session":
		database, err := openDatabase(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		if err := cli.SessionCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "boards":
		database, err := openDatabase(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		if len(commandArgs) == 0 {
			fmt.Println("Error: boards requires a subcommand")
			printUsage()
			os.Exit(1)
		}

		boardsCommand := commandArgs[0]
		boardsArgs := commandArgs[1:]

		switch boardsCommand {
		case "list":
			if err := cli.ListBoardsCommand(database, boardsArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		case "show":
			if err := cli.ShowBoardCommand(database, boardsArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		case "delete":
			if err := cli.DeleteBoardCommand(database, boardsArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		default:
			fmt.Printf("Unknown boards command: %s\n\n", boardsCommand)
			printUsage()
			os.Exit(1)
		}

	case "config":
		if len(commandArgs) == 0 {
			fmt.Println("Error: config requires a subcommand")
			printUsage()
			os.Exit(1)
		}

		configCommand := commandArgs[0]
		configArgs := commandArgs[1:]

		switch configCommand {
		case "show":
			if err := cli.ConfigShowCommand(configArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		case "set-host":
			if err := cli.ConfigSetHostCommand(configArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		case "set":
			if err := cli.ConfigSetSettingsCommand(configArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		default:
			fmt.Printf("Unknown config command: %s\n\n", configCommand)
			printUsage()
			os.Exit(1)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = db.DefaultPath()
	}
	return db.OpenDatabase(dbPath)
}

func printUsage() {
	fmt.Printf(`mural v%s - Collaborative board sync engine

USAGE:
  mural [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/mural/boards.db)

COMMANDS:
  session                Join a board and keep it synced
  boards                 Local board storage commands
  config                 Backend and settings commands

SESSION:
  mural session             Join (or create) a board
    --board <id>              Board ID to join (default: create a new board)
    --backend <name>          Replication backend: charm, ws, or memory (default: charm)
    --ws-url <url>            WebSocket backend URL (required with --backend ws)
    --save-url <url>          Durable persistence endpoint (default: local database)
    --interval <dur>          Autosave interval (default: from settings)
    --no-tui                  Run headless without the status view

BOARDS COMMANDS:
  mural boards list         List locally stored boards
    --limit <n>               Max results (default: 50)

  mural boards show <id>    Show a stored board snapshot

  mural boards delete <id>  Delete a stored board
    --force                   Skip confirmation

CONFIG COMMANDS:
  mural config show              Show current config and settings
  mural config set-host <host>   Set the charm server host
  mural config set               Update user settings
    --image-model <name>           Preferred image generation model
    --edit-model <name>            Preferred image edit model
    --autosave-interval <dur>      Autosave interval (e.g. 5s)

EXAMPLES:
  # Create and host a new board
  mural session

  # Join an existing board over charm
  mural session --board 7f3e... --backend charm

  # Join over a websocket relay, saving to an HTTP endpoint
  mural session --board 7f3e... --backend ws --ws-url wss://relay.example.com --save-url https://api.example.com

  # List local boards
  mural boards list

`, version)
}
