// Command moozedealer-cli is a small operator tool for talking to a running
// moozedealerd over its HTTP ingress, one file per command.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "moozedealer-cli"
	app.Usage = "operator tool for the fiat-to-crypto dealer daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "localhost:8080",
			Usage: "host:port of the dealer's HTTP ingress",
		},
	}
	app.Commands = []cli.Command{
		userCommand,
		verifyCommand,
		depositCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// actionDecorator wraps a command action so a non-nil error always reaches
// the user as "[command] error".
func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		if err := f(c); err != nil {
			return cli.NewExitError(fmt.Sprintf("[%s] %v", c.Command.Name, err), 1)
		}
		return nil
	}
}

func baseURL(ctx *cli.Context) string {
	return "http://" + ctx.GlobalString("rpcserver")
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func postJSON(url string, body, out interface{}) (int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
