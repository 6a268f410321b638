package main

import (
	"fmt"
	"strconv"

	"github.com/moozedealer/dealer/internal/assetid"
	"github.com/urfave/cli"
)

var depositCommand = cli.Command{
	Name:      "deposit",
	Category:  "Payments",
	Usage:     "Open a Pix deposit that pays out DEPIX to a Liquid address.",
	ArgsUsage: "user-id address amount-in-cents",
	Action:    actionDecorator(openDeposit),
}

type depositRequest struct {
	UserID        string `json:"user_id"`
	Address       string `json:"address"`
	AmountInCents int64  `json:"amount_in_cents"`
	Asset         string `json:"asset"`
	Network       string `json:"network"`
}

type depositView struct {
	ID          string `json:"id"`
	QRCopyPaste string `json:"qr_copy_paste"`
	QRImageURL  string `json:"qr_image_url"`
}

func openDeposit(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 3 {
		return cli.ShowCommandHelp(ctx, "deposit")
	}

	amount, err := strconv.ParseInt(args.Get(2), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount-in-cents: %v", err)
	}

	req := depositRequest{
		UserID:        args.Get(0),
		Address:       args.Get(1),
		AmountInCents: amount,
		Asset:         assetid.DepixHex,
		Network:       "liquid",
	}

	var resp depositView
	url := baseURL(ctx) + "/deposit"
	status, err := postJSON(url, req, &resp)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("server returned status %d", status)
	}

	fmt.Printf("deposit %s opened\n%s\n", resp.ID, resp.QRCopyPaste)
	return nil
}
