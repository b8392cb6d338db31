package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/index"
	"github.com/John-Robertt/fpvsession/internal/infra/cache"
	"github.com/John-Robertt/fpvsession/internal/thumb"
)

func (c *cli) indexCmd() *cobra.Command {
	var snapshot, byDate bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "输出会话索引 JSON（供外部画廊读取）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, log, err := c.loadOutputOnly(cmd.Flags())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			idx := index.New(eff.Output, eff.IndexMaxAge, log)
			defer idx.Close()

			recs, err := idx.Sessions()
			if err != nil {
				return fail(err)
			}
			if snapshot {
				if err := idx.WriteSnapshot(cache.New(eff.Output, false)); err != nil {
					return fail(fmt.Errorf("写入索引快照失败：%w", err))
				}
			}

			if byDate {
				groups, months := index.ByDate(recs)
				return c.printJSON(struct {
					Months []string                          `json:"months"`
					ByDate map[string][]domain.SessionRecord `json:"by_date"`
				}{months, groups})
			}
			return c.printJSON(recs)
		},
	}
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "同时写入 <output>/.fpvsession/index.json")
	cmd.Flags().BoolVar(&byDate, "by-date", false, "按日期分组输出")
	return cmd
}

func (c *cli) tagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "读取或设置会话标签（.fpvweb_meta.json）",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <day> <session>",
			Short: "输出会话标签",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				eff, log, err := c.loadOutputOnly(cmd.Flags())
				if err != nil {
					return err
				}
				defer func() { _ = log.Sync() }()

				tags, err := index.LoadTags(eff.Output, args[0], args[1])
				if err != nil {
					return fail(err)
				}
				return c.printJSON(tags)
			},
		},
		&cobra.Command{
			Use:   "set <day> <session> [tag...]",
			Short: "覆盖会话标签（规范化：去空白、小写、去重）",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				eff, log, err := c.loadOutputOnly(cmd.Flags())
				if err != nil {
					return err
				}
				defer func() { _ = log.Sync() }()

				idx := index.New(eff.Output, eff.IndexMaxAge, log)
				defer idx.Close()

				tags, err := idx.SaveTags(args[0], args[1], args[2:])
				if errors.Is(err, index.ErrInvalidSession) || errors.Is(err, os.ErrNotExist) {
					return fail(fmt.Errorf("会话不存在：%s/%s", args[0], args[1]))
				}
				if err != nil {
					return fail(err)
				}
				return c.printJSON(tags)
			},
		},
	)
	return cmd
}

func (c *cli) thumbsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thumbs",
		Short: "为缺少缩略图的视频生成 <名字>_thumb.jpg（需要 --apply）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, log, err := c.loadOutputOnly(cmd.Flags())
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			tasks, err := thumb.Pending(eff.Output)
			if err != nil {
				return fail(err)
			}
			if !eff.Apply {
				for _, t := range tasks {
					fmt.Fprintf(c.stderr, "planned %s\n", rel(eff.Output, t.Thumb))
				}
				fmt.Fprintf(c.stderr, "缩略图：待生成 %d 个（dry-run，使用 --apply 生成）\n", len(tasks))
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			g := thumb.New(eff.FFmpegPath, thumb.DefaultTimeout, log)
			ok, err := g.GenerateAll(ctx, tasks, func(i, total int, t thumb.Task, err error) {
				status := "OK"
				if err != nil {
					status = "FAIL"
				}
				fmt.Fprintf(c.stderr, "[%d/%d] %s %s\n", i, total, rel(eff.Output, t.Thumb), status)
			})
			fmt.Fprintf(c.stderr, "缩略图：生成 %d/%d\n", ok, len(tasks))
			if err != nil {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func (c *cli) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fail(err)
	}
	if _, err := c.stdout.Write(append(b, '\n')); err != nil {
		return fail(err)
	}
	return nil
}

func rel(root, path string) string {
	if r, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}
