package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bakeflow/internal/bake"
	"github.com/roach88/bakeflow/internal/checkpoint"
)

// SavestateList is the success payload of savestates list.
type SavestateList struct {
	Default bool  `json:"default_slot"`
	Slots   []int `json:"numbered_slots"`
}

func (l SavestateList) String() string {
	if !l.Default && len(l.Slots) == 0 {
		return "no savestates"
	}
	var b strings.Builder
	if l.Default {
		b.WriteString("default slot present\n")
	}
	for _, s := range l.Slots {
		fmt.Fprintf(&b, "slot %06d\n", s)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewSavestatesCommand creates the savestates command group.
func NewSavestatesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "savestates",
		Aliases: []string{"checkpoints"},
		Short:   "Inspect and prune savestates",
	}
	cmd.AddCommand(newSavestatesListCommand(rootOpts))
	cmd.AddCommand(newSavestatesPruneCommand(rootOpts))
	return cmd
}

func newSavestatesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List savestate slots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSavestates(rootOpts, cmd, func(m *checkpoint.Manager, dir string, formatter *OutputFormatter) error {
				slots, err := m.ListSlots()
				if err != nil {
					formatter.Error(ErrCodeSavestate, err.Error(), nil)
					return WrapExitError(ExitFailure, "list savestates", err)
				}
				_, statErr := os.Stat(filepath.Join(dir, checkpoint.ManifestFileName))
				return formatter.Success(SavestateList{
					Default: statErr == nil,
					Slots:   slots,
				})
			})
		},
	}
}

func newSavestatesPruneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune <frame>",
		Short: "Remove numbered savestates beyond a frame",
		Long: `Remove every numbered savestate slot whose frame is greater than the
given frame. Run after rolling a bake back so stale future state cannot
be resumed from.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := strconv.Atoi(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid frame %q", args[0]), err)
			}
			return withSavestates(rootOpts, cmd, func(m *checkpoint.Manager, dir string, formatter *OutputFormatter) error {
				if err := m.PruneBeyond(frame); err != nil {
					formatter.Error(ErrCodeSavestate, err.Error(), nil)
					return WrapExitError(ExitFailure, "prune savestates", err)
				}
				return formatter.Success(fmt.Sprintf("pruned savestates beyond frame %d", frame))
			})
		},
	}
}

// withSavestates opens the savestate manager for a maintenance command.
func withSavestates(opts *RootOptions, cmd *cobra.Command,
	fn func(*checkpoint.Manager, string, *OutputFormatter) error) error {
	return withStore(opts, cmd, func(bctx *bake.Context, formatter *OutputFormatter) error {
		m := checkpoint.NewManager(bctx.SavestateDir, bctx.Guard, bctx.Log, checkpoint.Options{})
		return fn(m, bctx.SavestateDir, formatter)
	})
}
