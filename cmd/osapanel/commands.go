package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
	"github.com/greg-hellings/osapanel/pkg/server"
)

var (
	flagsFormat  string
	serveListen  string
	serveMaxSess int
)

// newFlagsCmd lists the known feature flags.
func newFlagsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "flags",
		Short: "List feature flags, their defaults and tool arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := jobconfig.Specs()
			switch strings.ToLower(flagsFormat) {
			case "json":
				out := make([]server.FlagResponse, 0, len(specs))
				for _, spec := range specs {
					out = append(out, server.FlagResponse{
						Key:         spec.Key.String(),
						Kind:        spec.Kind.String(),
						Default:     spec.Default,
						Allowed:     spec.Allowed,
						Arg:         spec.Arg,
						Description: spec.Description,
					})
				}
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			case "console":
				tw := table.NewWriter()
				tw.SetOutputMirror(cmd.OutOrStdout())
				tw.SetStyle(table.StyleRounded)
				tw.AppendHeader(table.Row{"Key", "Kind", "Default", "Allowed", "Argument"})
				for _, spec := range specs {
					tw.AppendRow(table.Row{spec.Key.String(), spec.Kind.String(), formatDefault(spec.Default), strings.Join(spec.Allowed, ", "), spec.Arg})
				}
				tw.Render()
				return nil
			default:
				return fmt.Errorf("unsupported format: %s", flagsFormat)
			}
		},
	}
	c.Flags().StringVarP(&flagsFormat, "format", "f", "console", "Output format: console|json")
	return c
}

func formatDefault(v any) string {
	switch d := v.(type) {
	case nil:
		return "-"
	case []string:
		return strings.Join(d, ", ")
	case string:
		if d == "" {
			return `""`
		}
		return d
	default:
		return fmt.Sprint(d)
	}
}

// newServeCmd starts the HTTP API.
func newServeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control panel HTTP API",
		Long: strings.TrimSpace(`
Serve the control panel as a JSON HTTP API. Every client creates its own
session with POST /api/v1/sessions; sessions are independent and are removed
with DELETE /api/v1/sessions/{id} or when the server stops.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return newServer().Run(ctx)
		},
	}
	c.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (overrides config)")
	c.Flags().IntVar(&serveMaxSess, "max-sessions", 0, "Maximum open sessions (overrides config)")
	return c
}

func newServer() *server.Server {
	listen := panelConfig.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}
	maxSessions := panelConfig.Server.MaxSessions
	if serveMaxSess > 0 {
		maxSessions = serveMaxSess
	}
	return server.New(server.Options{
		ListenAddr:  listen,
		MaxSessions: maxSessions,
		Session:     sessionOptions(panelConfig, false),
	})
}
