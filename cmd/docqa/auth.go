package main

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func loginCMD(cfgPath *string) *cobra.Command {
	var email string
	var login = &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			if email == "" {
				if email, err = promptLine(in, out, "Email"); err != nil {
					return err
				}
			}
			password, err := promptPassword(in, out)
			if err != nil {
				return err
			}

			resp, err := e.client.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if resp.Token == "" {
				return errors.New("login: server returned no token")
			}
			if err := e.tokens.Set(resp.Token); err != nil {
				return err
			}
			fmt.Fprintln(out, "Signed in as", email)
			return nil
		},
	}
	login.Flags().StringVar(&email, "email", "", "account email")
	return login
}

func registerCMD(cfgPath *string) *cobra.Command {
	var name, email string
	var register = &cobra.Command{
		Use:   "register",
		Short: "Create an account and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			if name == "" {
				if name, err = promptLine(in, out, "Name"); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = promptLine(in, out, "Email"); err != nil {
					return err
				}
			}
			password, err := promptPassword(in, out)
			if err != nil {
				return err
			}

			resp, err := e.client.Register(cmd.Context(), name, email, password)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			if resp.Token == "" {
				return errors.New("register: server returned no token")
			}
			if err := e.tokens.Set(resp.Token); err != nil {
				return err
			}
			fmt.Fprintln(out, "Account created for", email)
			return nil
		},
	}
	register.Flags().StringVar(&name, "name", "", "display name")
	register.Flags().StringVar(&email, "email", "", "account email")
	return register
}

func logoutCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, *cfgPath, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.tokens.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
