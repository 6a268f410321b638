package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli"
)

var userCommand = cli.Command{
	Name:      "user",
	Category:  "Accounts",
	Usage:     "Look up a user's spending and verification status.",
	ArgsUsage: "user-id",
	Action:    actionDecorator(lookupUser),
}

type userView struct {
	UserID          string `json:"user_id"`
	DailySpending   int64  `json:"daily_spending"`
	AllowedSpending int64  `json:"allowed_spending"`
	Verified        bool   `json:"verified"`
}

func lookupUser(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 1 {
		return cli.ShowCommandHelp(ctx, "user")
	}

	var u userView
	url := fmt.Sprintf("%s/user/%s", baseURL(ctx), args.Get(0))
	if err := getJSON(url, &u); err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"user id", "daily spending (cents)", "allowed spending (cents)", "verified"})
	t.AppendRow(table.Row{u.UserID, u.DailySpending, u.AllowedSpending, u.Verified})
	t.Render()
	return nil
}
