package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/loykin/tuc"
	"github.com/loykin/tuc/pkg/client"
)

// command runs client subcommands against the daemon API.
type command struct {
	out io.Writer
}

func (c command) client(f APIFlags) (*client.Client, error) {
	cfg := client.Config{
		BaseURL:  f.APIUrl,
		Timeout:  f.APITimeout,
		Token:    f.APIToken,
		Insecure: f.APIInsecure,
	}
	if f.APICACert != "" {
		cfg.TLS = &client.TLSClientConfig{CACert: f.APICACert}
	}
	return client.New(cfg)
}

func (c command) List(ctx context.Context, f APIFlags) error {
	cl, err := c.client(f)
	if err != nil {
		return err
	}
	entries, err := cl.ListScripts(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(c.out, "no scripts registered")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSTATE\tTASK\tPATH")
	for _, e := range entries {
		task := e.TaskName
		if task == "" {
			task = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name(), e.State, task, e.Path)
	}
	return tw.Flush()
}

func (c command) Add(ctx context.Context, f ScriptFlags) error {
	cl, err := c.client(f.APIFlags)
	if err != nil {
		return err
	}
	e, err := cl.AddScript(ctx, f.Path)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "added %s\n", e.Path)
	return nil
}

func (c command) Remove(ctx context.Context, f ScriptFlags) error {
	cl, err := c.client(f.APIFlags)
	if err != nil {
		return err
	}
	if err := cl.RemoveScript(ctx, f.Path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "removed %s\n", f.Path)
	return nil
}

func (c command) Run(ctx context.Context, f ScriptFlags) error {
	cl, err := c.client(f.APIFlags)
	if err != nil {
		return err
	}
	r, err := cl.StartScript(ctx, f.Path)
	if err != nil {
		return err
	}
	c.printResult(r)
	return nil
}

func (c command) Stop(ctx context.Context, f ScriptFlags) error {
	cl, err := c.client(f.APIFlags)
	if err != nil {
		return err
	}
	r, err := cl.StopScript(ctx, f.Path)
	if err != nil {
		return err
	}
	c.printResult(r)
	return nil
}

func (c command) RunAll(ctx context.Context, f APIFlags) error {
	cl, err := c.client(f)
	if err != nil {
		return err
	}
	res, err := cl.StartAll(ctx)
	if err != nil {
		return err
	}
	return c.printResults(res)
}

func (c command) StopAll(ctx context.Context, f APIFlags) error {
	cl, err := c.client(f)
	if err != nil {
		return err
	}
	res, err := cl.StopAll(ctx)
	if err != nil {
		return err
	}
	return c.printResults(res)
}

func (c command) SetAutostart(ctx context.Context, f APIFlags, on bool) error {
	cl, err := c.client(f)
	if err != nil {
		return err
	}
	got, err := cl.SetAutostart(ctx, on)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "autostart %s\n", onOff(got))
	return nil
}

func (c command) AutostartStatus(ctx context.Context, f APIFlags) error {
	cl, err := c.client(f)
	if err != nil {
		return err
	}
	on, err := cl.Autostart(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "autostart %s\n", onOff(on))
	return nil
}

func (c command) Notices(ctx context.Context, f APIFlags, limit int) error {
	cl, err := c.client(f)
	if err != nil {
		return err
	}
	ns, err := cl.Notices(ctx, limit)
	if err != nil {
		return err
	}
	for _, n := range ns {
		_, _ = fmt.Fprintf(c.out, "%s  %-16s %s\n", n.At.Format("2006-01-02 15:04:05"), n.Title, n.Message)
	}
	return nil
}

func (c command) Token(configPath, subject string, ttl time.Duration) error {
	cfg, err := tuc.LoadConfig(configPath)
	if err != nil {
		return err
	}
	tok, err := tuc.IssueToken(cfg, subject, ttl)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, tok.Value)
	return nil
}

func (c command) printResult(r tuc.Result) {
	if r.TaskName != "" {
		_, _ = fmt.Fprintf(c.out, "%s: %s (%s)\n", r.Name, r.Outcome, r.TaskName)
		return
	}
	_, _ = fmt.Fprintf(c.out, "%s: %s\n", r.Name, r.Outcome)
}

// printResults prints one line per script and fails when any script failed.
func (c command) printResults(res []tuc.Result) error {
	failed := 0
	for _, r := range res {
		if r.Error != "" && !isNoticeOutcome(r.Outcome) {
			failed++
			_, _ = fmt.Fprintf(c.out, "%s: %s: %s\n", r.Name, r.Outcome, r.Error)
			continue
		}
		c.printResult(r)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, len(res))
	}
	return nil
}

func isNoticeOutcome(o tuc.Outcome) bool {
	switch o {
	case tuc.OutcomeAlreadyRunning, tuc.OutcomeNotRunning, tuc.OutcomeNoTask:
		return true
	}
	return false
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
