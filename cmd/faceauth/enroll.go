package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"faceauth-go/internal/enrollment"
	"faceauth-go/internal/imaging"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity> <image-or-folder> [image-or-folder...]",
	Short: "Register reference faces for an identity",
	Long: `Register reference faces for an identity from image files or folders.

Each image is searched for a face, which is cropped and stored. With --cropped
the images are stored as they are. Folders are read recursively.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().Bool("cropped", false, "Images already contain only the face")
	enrollCmd.Flags().Bool("train", true, "Train the recognizer after enrolling")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	identity := args[0]
	cropped := mustGetBool(cmd, "cropped")

	paths, err := collectImages(args[1:])
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no images found")
	}

	a, err := newApp(ctx, cfg, enrollment.SourceCLI)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Enrolling "+identity),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var enrolled int
	var failures []string
	for _, path := range paths {
		img, err := imaging.DecodeFile(path)
		if err == nil {
			if cropped {
				_, err = a.engine.EnrollFace(ctx, identity, img)
			} else {
				_, err = a.engine.Enroll(ctx, identity, img)
			}
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
		} else {
			enrolled++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()

	for _, f := range failures {
		log.Warn(f)
	}
	fmt.Printf("Enrolled %d of %d images for %s\n", enrolled, len(paths), identity)

	if enrolled == 0 {
		return fmt.Errorf("no image could be enrolled")
	}
	if mustGetBool(cmd, "train") {
		if err := a.engine.Retrain(ctx); err != nil {
			return err
		}
		fmt.Printf("Recognizer trained: %s\n", strings.Join(a.engine.Identities(), ", "))
	}
	return nil
}

// collectImages expandiert Ordner rekursiv zu sortierten Bildpfaden
func collectImages(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".jpg", ".jpeg", ".png":
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}
