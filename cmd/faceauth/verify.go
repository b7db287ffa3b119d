package main

import (
	"fmt"

	"faceauth-go/internal/core/models"
	"faceauth-go/internal/enrollment"
	"faceauth-go/internal/faceauth"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <identity>",
	Short: "Authenticate an identity with the camera",
	Long: `Read frames from the camera (or from camera.device pointing to an image file
or folder) until a face is found and check it against the claimed identity.
Exits with an error if the face is rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Int("attempts", 0, "Maximum number of frames (0 = recognizer.max_attempts)")
	verifyCmd.Flags().Float64("threshold", 0, "Override the decision threshold for this check")
	verifyCmd.Flags().String("device", "", "Override camera.device")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	claim := args[0]

	attempts := mustGetInt(cmd, "attempts")
	if attempts <= 0 {
		attempts = cfg.Recognizer.MaxAttempts
	}
	var opts []faceauth.RecognizeOption
	if t := mustGetFloat64(cmd, "threshold"); t > 0 {
		opts = append(opts, faceauth.WithThreshold(t))
	}
	camCfg := cfg.Camera
	if device := mustGetString(cmd, "device"); device != "" {
		camCfg.Device = device
	}

	a, err := newApp(ctx, cfg, enrollment.SourceCLI)
	if err != nil {
		return err
	}
	defer a.Close()

	src, closeSrc, err := openSource(camCfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	res, authErr := faceauth.Authenticate(ctx, a.engine, src, claim, attempts, opts...)

	attempt := &models.AuthAttempt{
		Claim:    claim,
		Identity: res.Identity,
		Accepted: res.Accepted && authErr == nil,
		Score:    res.Score,
		Label:    res.Label,
		Variant:  string(a.engine.Variant()),
		Source:   enrollment.SourceCLI,
	}
	if authErr != nil {
		attempt.Error = authErr.Error()
	}
	if err := a.repo.SaveAttempt(ctx, attempt); err != nil {
		log.Warnf("Versuch konnte nicht gespeichert werden: %v", err)
	}

	if authErr != nil {
		return authErr
	}
	if !res.Accepted {
		return fmt.Errorf("rejected: recognized %q (score %.4f)", res.Identity, res.Score)
	}
	fmt.Printf("Accepted: %s (score %.4f)\n", res.Identity, res.Score)
	return nil
}
