package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/moe-bench/moe-bench/internal/client"
)

var (
	visionImage     string
	visionMode      string
	visionTimeoutMS int
	visionRaw       bool
)

var visionCmd = &cobra.Command{
	Use:   "vision",
	Short: "Probe the vision endpoint of a running server",
	Long: `Send one image to the running inference server's vision endpoint
and print the outcome. A license-required response is reported as such,
not as a failure.`,
	RunE: probeVision,
}

func init() {
	visionCmd.Flags().StringVarP(&visionImage, "image", "i", "", "Path to image file")
	visionCmd.Flags().StringVar(&visionMode, "mode", "ocr", "Vision mode")
	visionCmd.Flags().IntVar(&visionTimeoutMS, "timeout-ms", 600000, "Server-side timeout in milliseconds")
	visionCmd.Flags().BoolVar(&visionRaw, "raw", false, "Request raw output")
	_ = visionCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(visionCmd)
}

func probeVision(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(visionImage)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	c := client.New(cfg.Server.BaseURL(), client.WithTimeout(cfg.Client.RequestTimeout))
	defer c.Close()

	result := c.Vision(cmd.Context(), client.VisionRequest{
		Mode:        visionMode,
		TimeoutMS:   visionTimeoutMS,
		Raw:         visionRaw,
		Filename:    filepath.Base(visionImage),
		ImageBase64: base64.StdEncoding.EncodeToString(data),
	})

	switch {
	case result.LicenseRequired:
		fmt.Println("vision: license required (recognized outcome)")
		return nil
	case !result.Success:
		return fmt.Errorf("vision probe failed: %s", result.Error)
	}

	fmt.Printf("vision: %d text block(s) in %s (backend %s)\n",
		len(result.TextBlocks), result.ResponseTime, result.Meta.Backend)
	for _, b := range result.TextBlocks {
		fmt.Printf("  %q (confidence %.2f)\n", b.Text, b.Confidence)
	}
	for _, warn := range result.Meta.ParseWarnings {
		fmt.Printf("  warning: %s\n", warn)
	}
	return nil
}
