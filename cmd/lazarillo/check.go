package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and probe the inference and speech services",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := false

		if problems := cfg.Validate(); len(problems) > 0 {
			for _, p := range problems {
				fmt.Fprintf(out, "config   FAIL  %s\n", p)
			}
			return fmt.Errorf("%d config problem(s)", len(problems))
		}
		fmt.Fprintln(out, "config   ok")

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.Health(ctx); err != nil {
			fmt.Fprintf(out, "server   FAIL  %s: %v\n", client.BaseURL(), err)
			failed = true
		} else {
			fmt.Fprintf(out, "server   ok    %s\n", client.BaseURL())
		}

		if cfg.Speech.Provider == "log" {
			fmt.Fprintln(out, "speech   skip  log provider")
		} else {
			voice, err := newVoice(cfg)
			if err != nil {
				fmt.Fprintf(out, "speech   FAIL  %v\n", err)
				failed = true
			} else {
				defer voice.Close()
				if err := voice.Health(ctx); err != nil {
					fmt.Fprintf(out, "speech   FAIL  %v\n", err)
					failed = true
				} else {
					fmt.Fprintf(out, "speech   ok    %s\n", cfg.Speech.Provider)
				}
			}
		}

		if failed {
			return fmt.Errorf("check failed")
		}
		return nil
	},
}
