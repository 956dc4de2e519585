package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/saveeat/core"
	"github.com/rushteam/saveeat/store"
)

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage user dietary profiles",
		Long:  `Create, read, update, patch and delete dietary profiles in the configured store.`,
	}

	// withStore 打开画像存储并在结束后关闭。
	withStore := func(cmd *cobra.Command, fn func(ps *store.ProfileStore) error) error {
		db, err := a.openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		kv, closeKV, err := a.openKV(cmd.Context(), db)
		if err != nil {
			return err
		}
		defer closeKV() //nolint:errcheck
		return fn(store.NewProfileStore(kv))
	}

	get := &cobra.Command{
		Use:   "get [user-id]",
		Short: "Print a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(ps *store.ProfileStore) error {
				p, err := ps.Get(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return printProfile(cmd, p)
			})
		},
	}

	var create bool
	set := &cobra.Command{
		Use:   "set [user-id] [json]",
		Short: "Replace a profile",
		Long:  `Writes a full profile record. The JSON document is read from the second argument or from stdin. Fields not present take their zero value. With --create the command fails if the profile already exists.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			data, err := payload(cmd, args)
			if err != nil {
				return err
			}
			p := core.NewDietaryProfile(userID)
			if err := json.Unmarshal(data, p); err != nil {
				return core.NewInvalidInputError(core.ModuleProfile, err)
			}
			p.UserID = userID
			return withStore(cmd, func(ps *store.ProfileStore) error {
				var saved *core.DietaryProfile
				if create {
					saved, err = ps.Create(cmd.Context(), p)
				} else {
					saved, err = ps.Put(cmd.Context(), p)
				}
				if err != nil {
					return err
				}
				return printProfile(cmd, saved)
			})
		},
	}
	set.Flags().BoolVar(&create, "create", false, "Fail if the profile already exists")

	patch := &cobra.Command{
		Use:   "patch [user-id] [json]",
		Short: "Update only the given profile fields",
		Long:  `Applies a partial update. Unknown keys are rejected and the merged profile is validated like a new one.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			data, err := payload(cmd, args)
			if err != nil {
				return err
			}
			return withStore(cmd, func(ps *store.ProfileStore) error {
				p, err := ps.Patch(cmd.Context(), userID, data)
				if err != nil {
					return err
				}
				return printProfile(cmd, p)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete [user-id]",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(ps *store.ProfileStore) error {
				if err := ps.Delete(cmd.Context(), userID); err != nil {
					return err
				}
				cmd.Printf("Deleted profile %d\n", userID)
				return nil
			})
		},
	}

	cmd.AddCommand(get, set, patch, del)
	return cmd
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

// payload 取第二个参数，缺省时读 stdin。
func payload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) > 1 {
		return []byte(args[1]), nil
	}
	return io.ReadAll(cmd.InOrStdin())
}

func printProfile(cmd *cobra.Command, p *core.DietaryProfile) error {
	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
