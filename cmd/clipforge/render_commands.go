package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/queue"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Manage clip exports",
	}

	renderCmd.AddCommand(newRenderStartCommand(ctx))
	renderCmd.AddCommand(newRenderListCommand(ctx))
	renderCmd.AddCommand(newRenderCancelCommand(ctx))
	return renderCmd
}

func newRenderStartCommand(ctx *commandContext) *cobra.Command {
	var cropFlag string
	var noTracking bool
	var captions bool
	var watermark string

	cmd := &cobra.Command{
		Use:   "start <clip-id>",
		Short: "Queue a vertical export of a clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			crop, err := parseCropMode(cropFlag)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				opts := queue.RenderOptions{
					FaceTracking: !noTracking,
					SmartCrop:    crop,
					Captions:     captions,
					Watermark:    strings.TrimSpace(watermark),
				}
				item, err := store.NewRender(cmd.Context(), strings.TrimSpace(args[0]), opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued render %s for clip %s (crop %s).\n",
					item.ID, item.ClipID, crop)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cropFlag, "crop", string(queue.CropModeAuto), "Crop mode: auto, solo, duo_switch, duo_split")
	cmd.Flags().BoolVar(&noTracking, "no-tracking", false, "Disable face tracking and use a fixed center crop")
	cmd.Flags().BoolVar(&captions, "captions", false, "Burn transcript captions into the export")
	cmd.Flags().StringVar(&watermark, "watermark", "", "Watermark text drawn near the bottom edge")
	return cmd
}

func newRenderListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List render requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var statuses []queue.Status
				if strings.TrimSpace(statusFlag) != "" {
					status, ok := queue.ParseStatus(statusFlag)
					if !ok {
						return fmt.Errorf("unknown status %q", statusFlag)
					}
					statuses = append(statuses, status)
				}
				renders, err := store.ListRenders(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(renders) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No renders queued.")
					return nil
				}

				rows := make([][]string, 0, len(renders))
				for _, item := range renders {
					opts, _ := item.Options()
					rows = append(rows, []string{
						item.ID,
						item.ClipID,
						string(item.Status),
						fmt.Sprintf("%.0f%%", item.ProgressPercent),
						string(opts.SmartCrop),
						yesNo(opts.Captions),
						item.OutputPath,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Render", "Clip", "Status", "Progress", "Crop", "Captions", "Output"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by render status")
	return cmd
}

func newRenderCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <render-id>",
		Short: "Cancel a pending or running render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				id := strings.TrimSpace(args[0])
				requested, err := store.RequestRenderCancel(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !requested {
					return fmt.Errorf("render %s cannot be cancelled in its current state", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for render %s.\n", id)
				return nil
			})
		},
	}
}

func parseCropMode(value string) (queue.CropMode, error) {
	switch queue.CropMode(strings.ToLower(strings.TrimSpace(value))) {
	case queue.CropModeAuto, "":
		return queue.CropModeAuto, nil
	case queue.CropModeSolo:
		return queue.CropModeSolo, nil
	case queue.CropModeDuoSwitch:
		return queue.CropModeDuoSwitch, nil
	case queue.CropModeDuoSplit:
		return queue.CropModeDuoSplit, nil
	default:
		return "", fmt.Errorf("unknown crop mode %q", value)
	}
}
