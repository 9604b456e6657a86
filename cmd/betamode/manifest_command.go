package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const (
	hostName        = "io.github.8tbhomework.betamode"
	hostDescription = "betamode image censoring host"
)

// hostManifest is the native messaging registration file. Chrome restricts
// callers with allowed_origins and Firefox with allowed_extensions.
type hostManifest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Path              string   `json:"path"`
	Type              string   `json:"type"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
}

func buildManifest(browser, hostPath string, extensionIDs []string) (hostManifest, error) {
	manifest := hostManifest{
		Name:        hostName,
		Description: hostDescription,
		Path:        hostPath,
		Type:        "stdio",
	}
	if len(extensionIDs) == 0 {
		return manifest, fmt.Errorf("at least one --extension-id is required")
	}
	switch strings.ToLower(strings.TrimSpace(browser)) {
	case "chrome", "chromium", "brave", "edge":
		for _, id := range extensionIDs {
			id = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(id), "chrome-extension://"), "/")
			manifest.AllowedOrigins = append(manifest.AllowedOrigins, "chrome-extension://"+id+"/")
		}
	case "firefox":
		for _, id := range extensionIDs {
			manifest.AllowedExtensions = append(manifest.AllowedExtensions, strings.TrimSpace(id))
		}
	default:
		return manifest, fmt.Errorf("unsupported browser %q (want chrome or firefox)", browser)
	}
	return manifest, nil
}

func newManifestCommand() *cobra.Command {
	var browser string
	var hostPath string
	var extensionIDs []string

	cmd := &cobra.Command{
		Use:         "manifest",
		Short:       "Print the native messaging host manifest for a browser",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(hostPath)
			if path == "" {
				exe, err := os.Executable()
				if err != nil {
					return fmt.Errorf("resolve executable path: %w", err)
				}
				path = exe
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve host path: %w", err)
			}
			manifest, err := buildManifest(browser, abs, extensionIDs)
			if err != nil {
				return err
			}
			return writeJSON(cmd, manifest)
		},
	}
	cmd.Flags().StringVar(&browser, "browser", "chrome", "Target browser: chrome or firefox")
	cmd.Flags().StringVar(&hostPath, "path", "", "Host executable path (defaults to this binary)")
	cmd.Flags().StringSliceVar(&extensionIDs, "extension-id", nil, "Extension id allowed to connect (repeatable)")
	return cmd
}
