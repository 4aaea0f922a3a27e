package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/cyruslab/pedalpay/src/model"
)

var ErrWalletNotFound = errors.New("no enabled wallet registered for owner")

func PutWallet(ctx context.Context, wallet *model.Wallet) error {
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT into wallets(owner_id, address, enabled)
				VALUES ($1, $2, $3)
				ON CONFLICT (owner_id) DO UPDATE SET address = $2, enabled = $3`,
			wallet.OwnerID, wallet.Address, wallet.Enabled)
		return errors.Wrapf(err, "failed to record wallet for owner %s", wallet.OwnerID)
	})
}

func GetWalletByOwner(ctx context.Context, ownerID string) (*model.Wallet, error) {
	wallet := &model.Wallet{}
	return wallet, DoQuery(ctx, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx,
			`SELECT owner_id, address, enabled, created_at FROM wallets
				WHERE owner_id = $1 AND enabled`, ownerID)
		err := row.Scan(&wallet.OwnerID, &wallet.Address, &wallet.Enabled, &wallet.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWalletNotFound
		}
		return errors.Wrapf(err, "failed to fetch wallet for owner %s", ownerID)
	})
}
