// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package market

import (
	"context"

	"ckbdex.org/ckbdex/dex/chain"
	"ckbdex.org/ckbdex/dex/order"
	"golang.org/x/sync/errgroup"
)

// FindOrders discovers every open order group of the pair and delivers them
// to the deliver callback. Groups are delivered in no particular order.
// Malformed on-chain cells are skipped silently; RPC failures abort the scan
// and propagate.
func (m *Manager) FindOrders(ctx context.Context, src CellSource, deliver func(*order.OrderGroup)) error {
	var orders []*order.OrderCell
	masters := make(map[chain.OutPoint]*chain.Cell)

	// The order and master scans are independent; issue them in parallel.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := &chain.CellQuery{
			Script:     m.orderScript,
			ScriptType: chain.ScriptTypeLock,
			Filter:     &m.udtScript,
			WithData:   true,
		}
		return src.FindCells(gctx, q, func(cell *chain.Cell) bool {
			if o := order.TryOrderCell(cell); o != nil {
				orders = append(orders, o)
			} else {
				log.Debugf("skipping malformed order cell %s", cell.OutPoint)
			}
			return true
		})
	})
	g.Go(func() error {
		q := &chain.CellQuery{Script: m.orderScript, ScriptType: chain.ScriptTypeType}
		return src.FindCells(gctx, q, func(cell *chain.Cell) bool {
			masters[cell.OutPoint] = cell
			return true
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// Bucket orders by their resolved master outpoint. One origin lookup is
	// issued per master, not per order.
	buckets := make(map[chain.OutPoint][]*order.OrderCell)
	for _, o := range orders {
		mp, err := o.Master()
		if err != nil {
			log.Debugf("skipping order %s: %v", o.Cell.OutPoint, err)
			continue
		}
		buckets[mp] = append(buckets[mp], o)
	}

	groups := make(chan *order.OrderGroup)
	g2, gctx := errgroup.WithContext(ctx)
	for mp, bucket := range buckets {
		mp, bucket := mp, bucket // per-iteration copies for the goroutine below
		master, found := masters[mp]
		if !found {
			log.Debugf("no live master cell %s for %d orders", mp, len(bucket))
			continue
		}
		g2.Go(func() error {
			origin, err := findOrigin(gctx, src, mp)
			if err != nil {
				return err
			}
			if origin == nil {
				log.Debugf("no origin found for master %s", mp)
				return nil
			}
			live := origin.Resolve(bucket)
			if live == nil {
				log.Debugf("no valid descendant for master %s", mp)
				return nil
			}
			select {
			case groups <- &order.OrderGroup{Master: master, Order: live, Origin: origin}:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g2.Wait()
		close(groups)
	}()
	for group := range groups {
		deliver(group)
	}
	return <-done
}

// findOrigin locates the originally minted order of a master cell by
// scanning the master's originating transaction outward from the master's
// index: first backwards toward index 0, then forwards until a missing cell
// terminates the scan, seeking the one cell whose resolved master is the
// target. The lookup chain is sequential within a master.
func findOrigin(ctx context.Context, src CellSource, master chain.OutPoint) (*order.OrderCell, error) {
	probe := func(idx uint64) (*order.OrderCell, bool, error) {
		cell, err := src.GetCell(ctx, chain.OutPoint{TxHash: master.TxHash, Index: idx})
		if err != nil {
			return nil, false, err
		}
		if cell == nil {
			return nil, false, nil
		}
		o := order.TryOrderCell(cell)
		if o == nil {
			return nil, true, nil
		}
		if mp, err := o.Master(); err == nil && mp == master {
			return o, true, nil
		}
		return nil, true, nil
	}

	for idx := master.Index; ; idx-- {
		o, _, err := probe(idx)
		if err != nil {
			return nil, err
		}
		if o != nil {
			return o, nil
		}
		if idx == 0 {
			break
		}
	}
	for idx := master.Index + 1; ; idx++ {
		o, present, err := probe(idx)
		if err != nil {
			return nil, err
		}
		if o != nil {
			return o, nil
		}
		if !present {
			break
		}
	}
	return nil, nil
}
