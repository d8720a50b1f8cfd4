package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/systemgarden/habitat/pkg/route"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a ring manifest",
	Long: `Apply ensures every ring declared in a YAML manifest exists,
creating it via its route URL if absent. Existing rings are left
untouched: apply never overwrites a ring's data, only its presence.

Examples:
  habitat apply -f rings.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// RingManifest is one declared ring in a manifest file, modeled on the
// teacher's apiVersion/kind/metadata/spec resource shape.
type RingManifest struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   RingMetadata     `yaml:"metadata"`
	Spec       RingManifestSpec `yaml:"spec"`
}

type RingMetadata struct {
	Name string `yaml:"name"`
}

type RingManifestSpec struct {
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
	Password    string `yaml:"password"`
	NSlots      int64  `yaml:"nslots"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	applied := 0
	for {
		var m RingManifest
		if err := dec.Decode(&m); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to parse YAML: %v", err)
		}
		if m.Kind != "Ring" {
			return fmt.Errorf("unsupported manifest kind: %s", m.Kind)
		}
		if m.Spec.URL == "" {
			return fmt.Errorf("ring %s: spec.url is required", m.Metadata.Name)
		}

		fmt.Printf("Applying ring: %s\n", m.Metadata.Name)
		h, err := route.Open(m.Spec.URL, m.Spec.Description, m.Spec.Password, m.Spec.NSlots)
		if err != nil {
			return fmt.Errorf("failed to apply ring %s: %v", m.Metadata.Name, err)
		}
		h.Close()
		fmt.Printf("✓ Ring ready: %s (%s)\n", m.Metadata.Name, m.Spec.URL)
		applied++
	}

	fmt.Printf("\n✓ Applied %d ring(s)\n", applied)
	return nil
}
