package main

import (
	"fmt"
	"strings"
	"time"

	"faceauth-go/internal/enrollment"

	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the recognizer from the stored reference faces",
	RunE:  runTrain,
}

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	RunE:  runIdentities,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(identitiesCmd)
	trainCmd.Flags().Bool("force", false, "Retrain even if the model is up to date")
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, enrollment.SourceCLI)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	if mustGetBool(cmd, "force") {
		err = a.engine.Retrain(ctx)
	} else {
		err = a.engine.Train(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Recognizer %s in %s: %s\n", a.engine.State(), time.Since(start).Round(time.Millisecond),
		strings.Join(a.engine.Identities(), ", "))
	return nil
}

func runIdentities(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, enrollment.SourceCLI)
	if err != nil {
		return err
	}
	defer a.Close()

	identities, err := a.repo.ListIdentities(ctx)
	if err != nil {
		return err
	}
	for _, id := range identities {
		fmt.Printf("%-24s %d\n", id.Name, id.Samples)
	}
	return nil
}
