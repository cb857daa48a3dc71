package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/spatial"
)

var (
	importManifest string
	importLayer    string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load shapefile territory layers into PostGIS",
	Long:  "Reads the layer manifest and COPY-loads each shapefile into its PostGIS territory table, replacing existing rows. Requires spatial.postgis_url.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		if cfg.Spatial.PostGISURL == "" {
			return eris.New("spatial.postgis_url is required for import")
		}

		manifestPath := importManifest
		if manifestPath == "" {
			manifestPath = cfg.Spatial.Manifest
		}
		manifest, err := spatial.LoadManifest(manifestPath)
		if err != nil {
			return err
		}

		pool, err := pgxpool.New(cmd.Context(), cfg.Spatial.PostGISURL)
		if err != nil {
			return eris.Wrap(err, "connect postgis")
		}
		defer pool.Close()

		var imported int
		for _, layer := range manifest.Layers {
			if importLayer != "" && layer.Name != importLayer {
				continue
			}
			rows, err := spatial.ImportLayer(cmd.Context(), pool, layer)
			if err != nil {
				return eris.Wrapf(err, "import layer %s", layer.Name)
			}
			zap.L().Info("layer imported",
				zap.String("layer", layer.Name),
				zap.Int64("rows", rows))
			imported++
		}
		if imported == 0 {
			return eris.Errorf("no layer named %q in %s", importLayer, manifestPath)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d layers\n", imported)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importManifest, "manifest", "", "layer manifest path (default from config)")
	importCmd.Flags().StringVar(&importLayer, "layer", "", "import only the named layer")
	rootCmd.AddCommand(importCmd)
}
