package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/jhearn/taskdns/internal/dns/domain"
	"github.com/jhearn/taskdns/internal/dns/repos/records"
)

const usage = `Usage: taskdnsctl <command> [flags]

Commands:
  get          print a record as DynamoDB JSON
  ips          print a record's published IPv4 addresses
  put-task     register a task's network interfaces under a record
  stop-task    mark a task stopped and withdraw its addresses
  remove-task  drop a task, releasing the record when it was the last
  list         list all record keys

Every command takes -zone and -name; task commands take -task.
put-task takes repeated -eni flags of the form eni-id=ip or eni-id.
`

// Run dispatches a CLI invocation. args excludes the program name.
func (app *Application) Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return fmt.Errorf("no command given")
	}

	command, args := args[0], args[1:]
	switch command {
	case "get":
		return app.runGet(ctx, args, out)
	case "ips":
		return app.runIPs(ctx, args, out)
	case "put-task":
		return app.runPutTask(ctx, args, out)
	case "stop-task":
		return app.runStopTask(ctx, args, out)
	case "remove-task":
		return app.runRemoveTask(ctx, args, out)
	case "list":
		return app.runList(ctx, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// recordFlags are the flags shared by every record-addressed command.
type recordFlags struct {
	fs   *flag.FlagSet
	zone *string
	name *string
	task *string
}

func newRecordFlags(command string, withTask bool) *recordFlags {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	rf := &recordFlags{
		fs:   fs,
		zone: fs.String("zone", "", "hosted zone id"),
		name: fs.String("name", "", "fully-qualified record name"),
	}
	if withTask {
		rf.task = fs.String("task", "", "task ARN")
	}
	return rf
}

func (rf *recordFlags) parse(args []string) (domain.RecordKey, error) {
	if err := rf.fs.Parse(args); err != nil {
		return domain.RecordKey{}, err
	}
	key, err := domain.NewRecordKey(*rf.zone, *rf.name)
	if err != nil {
		return domain.RecordKey{}, fmt.Errorf("-zone and -name are required: %w", err)
	}
	if rf.task != nil && *rf.task == "" {
		return domain.RecordKey{}, fmt.Errorf("-task is required")
	}
	return key, nil
}

// eniFlag collects repeated -eni values of the form "eni-id=ip" (or
// just "eni-id" while no address is assigned).
type eniFlag struct {
	enis []domain.EniInfo
}

func (f *eniFlag) String() string {
	parts := make([]string, 0, len(f.enis))
	for _, eni := range f.enis {
		if eni.PublicIPv4 == "" {
			parts = append(parts, eni.EniID)
			continue
		}
		parts = append(parts, eni.EniID+"="+eni.PublicIPv4)
	}
	return strings.Join(parts, ",")
}

func (f *eniFlag) Set(value string) error {
	id, ip, _ := strings.Cut(value, "=")
	if id == "" {
		return fmt.Errorf("eni id must not be empty")
	}
	f.enis = append(f.enis, domain.EniInfo{EniID: id, PublicIPv4: ip})
	return nil
}

func (app *Application) runGet(ctx context.Context, args []string, out io.Writer) error {
	rf := newRecordFlags("get", false)
	key, err := rf.parse(args)
	if err != nil {
		return err
	}

	rec, err := app.store.Get(ctx, key)
	if err != nil {
		return err
	}
	item, err := records.Encode(rec)
	if err != nil {
		return err
	}
	data, err := records.MarshalItem(item)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func (app *Application) runIPs(ctx context.Context, args []string, out io.Writer) error {
	rf := newRecordFlags("ips", false)
	key, err := rf.parse(args)
	if err != nil {
		return err
	}

	ips, err := app.registry.PublishableIPv4s(ctx, key)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		fmt.Fprintln(out, ip)
	}
	return nil
}

func (app *Application) runPutTask(ctx context.Context, args []string, out io.Writer) error {
	rf := newRecordFlags("put-task", true)
	var enis eniFlag
	rf.fs.Var(&enis, "eni", "network interface, eni-id=ip or eni-id (repeatable)")
	key, err := rf.parse(args)
	if err != nil {
		return err
	}

	task, err := domain.NewTaskInfo(*rf.task, enis.enis...)
	if err != nil {
		return err
	}
	rec, err := app.registry.UpsertTask(ctx, key, task)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", key, strings.Join(rec.SortedIPv4s(), " "))
	return nil
}

func (app *Application) runStopTask(ctx context.Context, args []string, out io.Writer) error {
	rf := newRecordFlags("stop-task", true)
	key, err := rf.parse(args)
	if err != nil {
		return err
	}

	rec, err := app.registry.MarkTaskStopped(ctx, key, *rf.task)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", key, strings.Join(rec.SortedIPv4s(), " "))
	return nil
}

func (app *Application) runRemoveTask(ctx context.Context, args []string, out io.Writer) error {
	rf := newRecordFlags("remove-task", true)
	key, err := rf.parse(args)
	if err != nil {
		return err
	}

	if err := app.registry.RemoveTask(ctx, key, *rf.task); err != nil {
		return err
	}
	fmt.Fprintf(out, "removed %s from %s\n", *rf.task, key)
	return nil
}

func (app *Application) runList(ctx context.Context, out io.Writer) error {
	keys, err := app.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Fprintln(out, key.String())
	}
	return nil
}
