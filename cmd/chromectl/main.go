package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "chromectl",
		Short:         "Operator CLI for the chromevm-sim HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "chromevm-sim base URL")

	root.AddCommand(
		createCmd(),
		getCmd(),
		listCmd(),
		actionCmd("start"),
		actionCmd("restart"),
		actionCmd("stop"),
		deleteCmd(),
		agentCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func createCmd() *cobra.Command {
	var name, instanceType, serverID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a Chrome VM",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"name": name}
			if instanceType != "" {
				body["instanceType"] = instanceType
			}
			if serverID != "" {
				body["server_id"] = serverID
			}
			return post("/vms", body)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "VM display name")
	cmd.Flags().StringVar(&instanceType, "instance-type", "", "instance type hint")
	cmd.Flags().StringVar(&serverID, "server-id", "", "server preference")
	cmd.MarkFlagRequired("name")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Fetch a VM record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get("/vms/" + args[0])
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all VM records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return get("/vms")
		},
	}
}

func actionCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " ID",
		Short: "Request a VM " + action,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return post("/vms/"+args[0]+"/"+action, nil)
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a VM record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodDelete, serverURL+"/vms/"+args[0], nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return dump(resp)
		},
	}
}

func agentCmd() *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "agent ID ACTION",
		Short: "Proxy a control action to the VM's agent (status, execute, screenshot, restart, browser/navigate)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := serverURL + "/vms/" + args[0] + "/agent/" + args[1]
			if payload == "" {
				return get(strings.TrimPrefix(url, serverURL))
			}
			resp, err := http.Post(url, "application/json", strings.NewReader(payload))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return dump(resp)
		},
	}
	cmd.Flags().StringVar(&payload, "data", "", "JSON body to forward")
	return cmd
}

func get(path string) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return dump(resp)
}

func post(path string, body any) error {
	var rd io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(bs)
	}
	resp, err := http.Post(serverURL+path, "application/json", rd)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return dump(resp)
}

func dump(resp *http.Response) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, b, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(b))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
