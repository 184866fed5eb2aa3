package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bakeflow/internal/bake"
	"github.com/roach88/bakeflow/internal/scene"
	"github.com/roach88/bakeflow/internal/store"
)

// ObjectInfo is one row of the objects list payload. Frames counts the
// cached frames per kind.
type ObjectInfo struct {
	ID     int64          `json:"id"`
	Name   string         `json:"name"`
	Slug   string         `json:"slug"`
	Motion string         `json:"motion"`
	Kinds  []string       `json:"kinds"`
	Frames map[string]int `json:"frames,omitempty"`
}

// ObjectList is the success payload of objects list.
type ObjectList struct {
	Objects []ObjectInfo `json:"objects"`
}

func (l ObjectList) String() string {
	if len(l.Objects) == 0 {
		return "no objects in cache"
	}
	var b strings.Builder
	for _, o := range l.Objects {
		fmt.Fprintf(&b, "%-6d %-24s %-10s %s\n",
			o.ID, o.Name, o.Motion, strings.Join(o.Kinds, ","))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewObjectsCommand creates the objects command group.
func NewObjectsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects",
		Short: "Inspect and maintain cached objects",
	}
	cmd.AddCommand(newObjectsListCommand(rootOpts))
	cmd.AddCommand(newObjectsDeleteCommand(rootOpts))
	return cmd
}

func newObjectsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List every object in the geometry cache",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(bctx *bake.Context, formatter *OutputFormatter) error {
				records, err := bctx.Store.ListObjects(cmd.Context())
				if err != nil {
					formatter.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitFailure, "list objects", err)
				}
				ctx := cmd.Context()
				list := ObjectList{Objects: make([]ObjectInfo, 0, len(records))}
				for _, r := range records {
					info := objectInfo(r)
					for _, k := range r.Kinds.Sorted() {
						frames, err := bctx.Store.ListExportedFrames(ctx, r.ID, r.Motion, k)
						if err != nil {
							formatter.Error(ErrCodeStore, err.Error(), nil)
							return WrapExitError(ExitFailure, "list exported frames", err)
						}
						if len(frames) > 0 {
							if info.Frames == nil {
								info.Frames = make(map[string]int)
							}
							info.Frames[k.String()] = len(frames)
						}
					}
					list.Objects = append(list.Objects, info)
				}
				return formatter.Success(list)
			})
		},
	}
}

func newObjectsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an object and all of its cached geometry",
		Long: `Delete an object row by name or slug. Every cached mesh, transform,
centroid, axis and curve row for the object is removed with it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(bctx *bake.Context, formatter *OutputFormatter) error {
				ctx := cmd.Context()
				slug := args[0]
				if _, ok, err := bctx.Store.ObjectID(ctx, slug); err != nil {
					formatter.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitFailure, "resolve object", err)
				} else if !ok {
					// Not a slug; try it as a scene name.
					slug = scene.Slug(args[0])
					if _, ok, err := bctx.Store.ObjectID(ctx, slug); err != nil {
						formatter.Error(ErrCodeStore, err.Error(), nil)
						return WrapExitError(ExitFailure, "resolve object", err)
					} else if !ok {
						msg := fmt.Sprintf("object %q not found", args[0])
						formatter.Error(ErrCodeNotFound, msg, nil)
						return WrapExitError(ExitCommandError, msg, nil)
					}
				}
				if err := bctx.Store.DeleteObject(ctx, slug); err != nil {
					formatter.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitFailure, "delete object", err)
				}
				return formatter.Success(fmt.Sprintf("deleted %s", args[0]))
			})
		},
	}
}

func objectInfo(r store.ObjectRecord) ObjectInfo {
	kinds := make([]string, 0, len(r.Kinds))
	for _, k := range r.Kinds.Sorted() {
		kinds = append(kinds, k.String())
	}
	return ObjectInfo{
		ID:     r.ID,
		Name:   r.Name,
		Slug:   r.Slug,
		Motion: r.Motion.String(),
		Kinds:  kinds,
	}
}

// withStore opens the bake context for a maintenance command and tears
// it down afterwards.
func withStore(opts *RootOptions, cmd *cobra.Command,
	fn func(*bake.Context, *OutputFormatter) error) error {
	formatter := newFormatter(opts, cmd)
	cfg, err := loadConfig(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	bctx, err := bake.NewContext(cfg, newLogger(opts, cmd.ErrOrStderr()))
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open bake context", err)
	}
	defer bctx.Close()
	return fn(bctx, formatter)
}
