package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bavix/scanbridge/internal/catalog"
	"github.com/bavix/scanbridge/internal/config"
)

type checkOutput struct {
	Config     string   `json:"config"`
	Transports []string `json:"transports"`
	Products   int      `json:"products"`
	Policy     string   `json:"not_found_policy"`
	RemoteURL  string   `json:"remote_url,omitempty"`
	HTTP       string   `json:"http,omitempty"`
	MQTT       string   `json:"mqtt,omitempty"`
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and the product catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := zerolog.Ctx(ctx)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			products, err := catalog.Load(cfg.Resolver.CatalogFile)
			if err != nil {
				log.Err(err).Str("file", cfg.Resolver.CatalogFile).Msg("catalog check failed")

				return err
			}

			out := checkOutput{
				Config:     cfg.Path,
				Transports: enabledTransports(cfg),
				Products:   len(products),
				Policy:     cfg.Resolver.NotFoundPolicy,
				RemoteURL:  cfg.Resolver.Remote.URL,
			}

			if out.Config == "" {
				out.Config = "defaults"
			}

			if cfg.HTTP.Enabled {
				out.HTTP = cfg.HTTP.Listen
			}

			if cfg.MQTT.Enabled {
				out.MQTT = cfg.MQTT.Broker
			}

			log.Info().Str("config", out.Config).Int("products", out.Products).Msg("configuration check completed successfully")

			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func enabledTransports(cfg *config.Config) []string {
	t := cfg.Transports

	var out []string

	for _, e := range []struct {
		name string
		on   bool
	}{
		{"camera", t.Camera.Enabled},
		{"hid", t.HID.Enabled},
		{"serial", t.Serial.Enabled},
		{"bluetooth", t.Bluetooth.Enabled},
		{"network", t.Network.Enabled},
		{"keyboard_wedge", t.KeyboardWedge.Enabled},
		{"demo", t.Demo.Enabled},
	} {
		if e.on {
			out = append(out, e.name)
		}
	}

	return out
}
