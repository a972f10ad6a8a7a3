package cmd

import (
	"fmt"
	"io"

	"chirp/feeds"
	"chirp/skip"

	"github.com/urfave/cli/v2"
)

func demoCmd() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Walk through the feed store and skip cursor",
		Subcommands: []*cli.Command{
			{
				Name:  "feed",
				Usage: "Post, follow and unfollow between two users and print the feed",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Feed selection strategy (heap, merge)",
						Value: string(feeds.StrategyHeap),
					},
				},
				Action: func(ctx *cli.Context) error {
					strategy, err := feeds.ParseStrategy(ctx.String("strategy"))
					if err != nil {
						return err
					}
					feedDemo(ctx.App.Writer, feeds.NewStore[int, int](feeds.WithStrategy(strategy)))
					return nil
				},
			},
			{
				Name:  "skip",
				Usage: "Consume a sequence while skipping the value 5",
				Action: func(ctx *cli.Context) error {
					return skipDemo(ctx.App.Writer)
				},
			},
		},
	}
}

func feedDemo(w io.Writer, store *feeds.Store[int, int]) {
	store.Post(1, 5)
	fmt.Fprintf(w, "feed(1) = %v\n", store.Feed(1))

	store.Follow(1, 2)
	store.Post(2, 6)
	fmt.Fprintf(w, "follow(1, 2), post(2, 6): feed(1) = %v\n", store.Feed(1))

	store.Unfollow(1, 2)
	fmt.Fprintf(w, "unfollow(1, 2): feed(1) = %v\n", store.Feed(1))

	for item := 7; item <= 17; item++ {
		store.Post(1, item)
	}
	fmt.Fprintf(w, "post(1, 7..17): feed(1) = %v\n", store.Feed(1))
}

func skipDemo(w io.Writer) error {
	c := skip.New(skip.FromSlice([]int{2, 3, 5, 6, 5, 7, 5, -1, 5, 10}))

	next := func() error {
		v, err := c.Next()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "next() = %d\n", v)
		return nil
	}
	steps := []func() error{
		next,
		func() error { c.Skip(5); fmt.Fprintln(w, "skip(5)"); return nil },
		next,
		next,
		next,
		func() error { c.Skip(5); c.Skip(5); fmt.Fprintln(w, "skip(5), skip(5)"); return nil },
		next,
		next,
		next,
	}

	fmt.Fprintf(w, "hasNext() = %t\n", c.HasNext())
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "hasNext() = %t\n", c.HasNext())
	return nil
}
