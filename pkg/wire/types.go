// Package wire implements the PostgreSQL v3 frame codec and a typed
// protocol writer on top of pgx/v5/pgproto3's message types.
package wire

// ClientMessage and ServerMessage enumerate the frontend/backend message
// type bytes this gateway accepts and emits, per spec section 6.
type ClientMessage byte
type ServerMessage byte
type DescribeTarget byte

const (
	ClientQuery       ClientMessage = 'Q'
	ClientParse       ClientMessage = 'P'
	ClientBind        ClientMessage = 'B'
	ClientDescribe    ClientMessage = 'D'
	ClientExecute     ClientMessage = 'E'
	ClientClose       ClientMessage = 'C'
	ClientSync        ClientMessage = 'S'
	ClientFlush       ClientMessage = 'H'
	ClientTerminate   ClientMessage = 'X'
	ClientFunctionCall ClientMessage = 'F'
	ClientCopyData    ClientMessage = 'd'
	ClientCopyDone    ClientMessage = 'c'
	ClientCopyFail    ClientMessage = 'f'
	ClientPassword    ClientMessage = 'p'
)

const (
	ServerAuth               ServerMessage = 'R'
	ServerParameterStatus    ServerMessage = 'S'
	ServerBackendKeyData     ServerMessage = 'K'
	ServerReadyForQuery      ServerMessage = 'Z'
	ServerRowDescription     ServerMessage = 'T'
	ServerDataRow            ServerMessage = 'D'
	ServerCommandComplete    ServerMessage = 'C'
	ServerEmptyQueryResponse ServerMessage = 'I'
	ServerParseComplete      ServerMessage = '1'
	ServerBindComplete       ServerMessage = '2'
	ServerCloseComplete      ServerMessage = '3'
	ServerNoData             ServerMessage = 'n'
	ServerParameterDescription ServerMessage = 't'
	ServerErrorResponse      ServerMessage = 'E'
	ServerNoticeResponse     ServerMessage = 'N'
	ServerPortalSuspended    ServerMessage = 's'
)

const (
	DescribeStatement DescribeTarget = 'S'
	DescribePortal    DescribeTarget = 'P'
)

func (m ClientMessage) String() string {
	switch m {
	case ClientQuery:
		return "Query"
	case ClientParse:
		return "Parse"
	case ClientBind:
		return "Bind"
	case ClientDescribe:
		return "Describe"
	case ClientExecute:
		return "Execute"
	case ClientClose:
		return "Close"
	case ClientSync:
		return "Sync"
	case ClientFlush:
		return "Flush"
	case ClientTerminate:
		return "Terminate"
	case ClientFunctionCall:
		return "FunctionCall"
	default:
		return "Unknown"
	}
}

// TransactionStatus is the single byte reported in every ReadyForQuery.
type TransactionStatus byte

const (
	TxIdle   TransactionStatus = 'I'
	TxActive TransactionStatus = 'T'
	TxFailed TransactionStatus = 'E'
)
