package cmd

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"property-market-onchain/cli"
	"property-market-onchain/model"
	"property-market-onchain/units"
	usecase "property-market-onchain/usecase/property"
)

// connect はターミナル画面に描画するコントローラーを作り、ウォレットに接続する
func connect(cmd *cobra.Command) (*usecase.Controller, *cli.TerminalView, error) {
	view := cli.NewTerminalView(cmd.OutOrStdout())
	controller := rt.newController(view)
	if err := controller.Initialize(cmd.Context()); err != nil {
		return nil, nil, err
	}
	return controller, view, nil
}

// properties: 未売却の物件一覧を表示
func propertiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "properties",
		Aliases: []string{"ls"},
		Short:   "Show unsold properties",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, view, err := connect(cmd)
			if err != nil {
				return err
			}
			return view.RenderListings()
		},
	}
}

// list <price>: ETH建ての価格で物件を出品
func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <price>",
		Short: "List a property for sale (price in ETH, e.g. 1.5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, view, err := connect(cmd)
			if err != nil {
				return err
			}
			res, err := controller.ListProperty(cmd.Context(), args[0])
			view.RenderTx(res)
			if err != nil {
				return err
			}
			return view.RenderListings()
		},
	}
}

// buy <id> [price-wei]: 物件を購入（金額省略時はコントラクト上の価格）
func buyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buy <id> [price-wei]",
		Short: "Buy a property, paying its listed price unless price-wei is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := new(big.Int).SetString(args[0], 10)
			if !ok {
				return fmt.Errorf("invalid property id %q", args[0])
			}

			controller, view, err := connect(cmd)
			if err != nil {
				return err
			}

			var price *big.Int
			if len(args) == 2 {
				if price, err = units.ParseWei(args[1]); err != nil {
					return err
				}
			} else {
				card, err := controller.GetProperty(cmd.Context(), id)
				if err != nil {
					return err
				}
				if price, err = units.ParseWei(card.PriceWei); err != nil {
					return err
				}
			}

			res, err := controller.BuyProperty(cmd.Context(), id, price)
			view.RenderTx(res)
			if err != nil {
				return err
			}
			return view.RenderListings()
		},
	}
}

// account: 接続中のアカウントとネットワークを表示
func accountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show the connected account and network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := cli.NewTerminalView(cmd.OutOrStdout())
			controller := rt.newController(view)
			// 一覧の読み込みに失敗しても接続情報は表示する
			initErr := controller.Initialize(cmd.Context())

			info := controller.SessionInfo()
			if err := view.RenderSession(info); err != nil {
				return err
			}
			if info.State != model.StateConnected {
				return initErr
			}
			return nil
		},
	}
}
