package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var verifyCommand = cli.Command{
	Name:      "verify",
	Category:  "Accounts",
	Usage:     "Mark a user as verified.",
	ArgsUsage: "user-id",
	Action:    actionDecorator(verifyUser),
}

func verifyUser(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 1 {
		return cli.ShowCommandHelp(ctx, "verify")
	}

	url := fmt.Sprintf("%s/admin/user/%s/verify", baseURL(ctx), args.Get(0))
	status, err := postJSON(url, struct{}{}, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("server returned status %d", status)
	}
	fmt.Printf("user %s verified\n", args.Get(0))
	return nil
}
