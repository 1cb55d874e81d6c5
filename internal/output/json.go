// Package output writes raw dumps and topology documents to files, stdout or
// Kafka.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/StinkyLord/dynatrace-topology-builder/internal/extract"
	"github.com/StinkyLord/dynatrace-topology-builder/internal/model"
)

// Stdout is the output path that selects standard output.
const Stdout = "-"

// WriteJSON marshals v as indented JSON and writes it to outputPath (or stdout
// if "-"). Missing parent directories are created.
func WriteJSON(outputPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if outputPath == Stdout {
		_, err = os.Stdout.Write(data)
		if err == nil {
			_, err = os.Stdout.WriteString("\n")
		}
		return err
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return os.WriteFile(outputPath, append(data, '\n'), 0644)
}

// DumpFileName names the raw dump of one fetch, e.g.
// "PA_process-group_v2_1700000000.json".
func DumpFileName(env string, componentType model.ComponentType, version extract.APIVersion, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%d.json", env, componentType, version, ts.Unix())
}

// TopologyFileName names the document converted from inputPath, e.g.
// "PA_host_v1_1700000000_topology_1700000100.json". Only the base name of the
// input is used.
func TopologyFileName(inputPath, suffix string, ts time.Time) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%s_%d.json", stem, suffix, ts.Unix())
}
