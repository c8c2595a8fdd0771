package ledger

import "errors"

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrProductNotFound       = errors.New("product not found")
	ErrShipmentNotFound      = errors.New("shipment not found")
	ErrProductNotActive      = errors.New("product not active")
	ErrShipmentNotActive     = errors.New("shipment not active")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrInvalidPrice          = errors.New("invalid price")
	ErrTransferToZeroAddress = errors.New("transfer to zero address")
	ErrInvalidBatchNumber    = errors.New("invalid batch number")
	ErrDuplicateHash         = errors.New("duplicate hash")
	ErrInvalidLocation       = errors.New("invalid location")
	ErrMaxBatchSizeExceeded  = errors.New("max batch size exceeded")
	ErrInvalidTimeRange      = errors.New("invalid time range")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrInvalidRole           = errors.New("invalid role")
	ErrPaused                = errors.New("enforced pause")
	ErrNotPaused             = errors.New("expected pause")
	ErrReentrantCall         = errors.New("reentrant call")
	ErrAlreadyInitialized    = errors.New("already initialized")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnauthorized, "Unauthorized"},
	{ErrProductNotFound, "ProductNotFound"},
	{ErrShipmentNotFound, "ShipmentNotFound"},
	{ErrProductNotActive, "ProductNotActive"},
	{ErrShipmentNotActive, "ShipmentNotActive"},
	{ErrInvalidStatus, "InvalidStatus"},
	{ErrInvalidPrice, "InvalidPrice"},
	{ErrTransferToZeroAddress, "TransferToZeroAddress"},
	{ErrInvalidBatchNumber, "InvalidBatchNumber"},
	{ErrDuplicateHash, "DuplicateHash"},
	{ErrInvalidLocation, "InvalidLocation"},
	{ErrMaxBatchSizeExceeded, "MaxBatchSizeExceeded"},
	{ErrInvalidTimeRange, "InvalidTimeRange"},
	{ErrInvalidParameter, "InvalidParameter"},
	{ErrInvalidRole, "InvalidRole"},
	{ErrPaused, "Paused"},
	{ErrNotPaused, "NotPaused"},
	{ErrReentrantCall, "ReentrantCall"},
	{ErrAlreadyInitialized, "AlreadyInitialized"},
}

// Kind returns the stable name of a ledger error, "OK" for nil and
// "Internal" for anything the ledger did not raise itself.
func Kind(err error) string {
	if err == nil {
		return "OK"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
