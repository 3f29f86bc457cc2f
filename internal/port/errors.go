package port

import "errors"

// ErrOptimisticLock is returned by LotRepository.UpdateLot when another writer
// changed the lot after it was read.
var ErrOptimisticLock = errors.New("optimistic lock conflict")
