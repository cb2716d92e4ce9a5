// Package main implements the CLI entry point for OurSQL.
//
// EDUCATIONAL NOTES:
// ------------------
// This is the entry point for the database CLI. It provides:
//  1. A REPL (Read-Eval-Print Loop) for interactive SQL queries
//  2. Command-line flags for configuration
//  3. Dot-commands for database administration
//  4. An optional HTTP surface, reusing the same Database/Executor
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/oursql/oursql/internal/applog"
	"github.com/oursql/oursql/internal/database"
	"github.com/oursql/oursql/internal/httpapi"
	"github.com/oursql/oursql/internal/sql/executor"
	"github.com/oursql/oursql/internal/sql/parser"
)

const (
	version = "0.1.0"
	banner  = `
   ____            _____  ____    _
  / __ \          / ____|/ __ \  | |
 | |  | |_   _ _ _| (___ | |  | | | |
 | |  | | | | | '__\___ \| |  | | | |
 | |__| | |_| | |   ____) | |__| | |____
  \____/ \__,_|_|  |_____/ \___\_\______|

  A Didactic SQL Database - Version %s
  Type '.help' for usage hints or '.quit' to exit.
`
)

var dotCommands = map[string]string{
	".help":   "Show this help message",
	".quit":   "Exit the program",
	".exit":   "Exit the program (alias for .quit)",
	".tables": "List all tables",
	".schema": "Show schema for all tables or a specific table",
	".clear":  "Clear the screen",
}

func main() {
	dataDir := flag.String("data", "oursql_data", "Path to the data directory")
	httpAddr := flag.String("http", "", "If set, also serve the HTTP API on this address (e.g. :8080)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("oursql version %s\n", version)
		return
	}

	applog.Init(applog.Config{Level: slog.LevelInfo})

	fmt.Printf(banner, version)

	db, err := database.Open(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	tables := db.ListTables()
	if len(tables) > 0 {
		fmt.Printf("Loaded %d table(s): %s\n\n", len(tables), strings.Join(tables, ", "))
	}

	exec := executor.New(db)

	if *httpAddr != "" {
		srv := httpapi.New(db)
		go func() {
			if err := srv.Run(*httpAddr); err != nil {
				applog.Logger().Error("http server exited", "error", err)
			}
		}()
	}

	repl(exec, db)
}

func repl(exec *executor.Executor, db *database.Database) {
	reader := bufio.NewReader(os.Stdin)
	var inputBuffer strings.Builder

	for {
		if inputBuffer.Len() == 0 {
			fmt.Print("oursql> ")
		} else {
			fmt.Print("    ...> ")
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			db.Flush()
			fmt.Println("\nGoodbye!")
			return
		}

		line = strings.TrimRight(line, "\n\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if strings.HasPrefix(strings.TrimSpace(line), ".") {
			handleDotCommand(strings.TrimSpace(line), exec, db)
			continue
		}

		inputBuffer.WriteString(line)
		input := strings.TrimSpace(inputBuffer.String())
		if !strings.HasSuffix(input, ";") {
			inputBuffer.WriteString(" ")
			continue
		}

		inputBuffer.Reset()
		executeSQL(input, exec, db)
	}
}

func handleDotCommand(cmd string, exec *executor.Executor, db *database.Database) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case ".help":
		fmt.Println("\nAvailable commands:")
		for cmd, desc := range dotCommands {
			fmt.Printf("  %-12s %s\n", cmd, desc)
		}
		fmt.Println("\nSQL Commands:")
		fmt.Println("  CREATE TABLE name (col type, ...)")
		fmt.Println("  DROP TABLE name")
		fmt.Println("  INSERT INTO table VALUES (...)")
		fmt.Println("  SELECT columns FROM table [WHERE condition] [ORDER BY col [ASC|DESC]] [LIMIT n]")
		fmt.Println("  UPDATE table SET column = value [WHERE condition]")
		fmt.Println("  DELETE FROM table [WHERE condition]")
		fmt.Println()

	case ".quit", ".exit":
		db.Flush()
		fmt.Println("Goodbye!")
		os.Exit(0)

	case ".tables":
		tables := db.ListTables()
		if len(tables) == 0 {
			fmt.Println("No tables found.")
		} else {
			fmt.Println("Tables:")
			for _, name := range tables {
				fmt.Printf("  %s\n", name)
			}
		}

	case ".schema":
		if len(parts) > 1 {
			showTableSchema(parts[1], db)
		} else {
			for _, name := range db.ListTables() {
				showTableSchema(name, db)
			}
		}

	case ".clear":
		fmt.Print("\033[H\033[2J")

	default:
		fmt.Printf("Unknown command: %s\n", parts[0])
		fmt.Println("Type '.help' for available commands.")
	}
}

func showTableSchema(name string, db *database.Database) {
	tbl, err := db.GetTable(name)
	if err != nil {
		fmt.Printf("Table '%s' not found.\n", name)
		return
	}

	fmt.Printf("CREATE TABLE %s (\n", name)
	for i, col := range tbl.Schema.Columns {
		suffix := ""
		if i == 0 {
			suffix = " -- primary key"
		}
		comma := ","
		if i == len(tbl.Schema.Columns)-1 {
			comma = ""
		}
		fmt.Printf("  %s %s%s%s\n", col.Name, col.Type, comma, suffix)
	}
	fmt.Println(");")
}

func executeSQL(input string, exec *executor.Executor, db *database.Database) {
	stmt, err := parser.Parse(input)
	if err != nil {
		fmt.Printf("Parse error: %v\n", err)
		return
	}

	result, err := exec.Execute(stmt)
	if err != nil {
		fmt.Printf("Execution error: %v\n", err)
		return
	}

	fmt.Print(result.String())
	db.Flush()
}
