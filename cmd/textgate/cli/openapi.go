package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/textgate/textgate/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL string
		outFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the OpenAPI document",
		Long:  "Render the gateway's OpenAPI 3.1 document as JSON, without starting the server.",
		Example: `  textgate openapi
  textgate openapi --base-url https://gateway.example.com -o openapi.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(baseURL, outFile)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8090", "Server URL embedded in the document")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "Write to a file instead of stdout")

	return cmd
}

func runOpenAPI(baseURL, outFile string) error {
	doc := openapi.Document(baseURL, versionString())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal openapi document: %w", err)
	}
	data = append(data, '\n')

	if outFile == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outFile, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outFile, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote OpenAPI document to %s\n", outFile)
	return nil
}
