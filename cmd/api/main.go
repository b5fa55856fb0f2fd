package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmaster/planner/cmd/api/commands"
)

// @title Planner API
// @version 1.0
// @description Personal task planner backed by Notion or PostgreSQL, with AI-assisted editing and image intake

// @contact.name Planner Support
// @contact.url https://github.com/taskmaster/planner

// @license.name MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and a Firebase ID token.

func main() {
	rootCmd := &cobra.Command{
		Use:   "planner",
		Short: "Planner task server and client",
		Long:  `Planner serves a task API over Notion or PostgreSQL and manages your tasks from the command line.`,
	}

	// Add commands
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())
	rootCmd.AddCommand(commands.NewTasksCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command execution failed: %v", err)
		os.Exit(1)
	}
}
