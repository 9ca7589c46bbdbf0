package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "bountyflow.v1.BountyService"

// BountyServiceServer is the server API for BountyService
type BountyServiceServer interface {
	RegisterAccount(context.Context, *RegisterAccountRequest) (*AccountResponse, error)
	GetAccount(context.Context, *GetAccountRequest) (*AccountResponse, error)
	ListAccounts(context.Context, *ListAccountsRequest) (*ListAccountsResponse, error)
	Deposit(context.Context, *DepositRequest) (*AccountResponse, error)
	SyncBalance(context.Context, *SyncBalanceRequest) (*AccountResponse, error)
	OpenBounty(context.Context, *OpenBountyRequest) (*BountyResponse, error)
	BoostBounty(context.Context, *BoostBountyRequest) (*BountyResponse, error)
	CancelBounty(context.Context, *CancelBountyRequest) (*BountyResponse, error)
	GetBounty(context.Context, *GetBountyRequest) (*BountyResponse, error)
	ListBounties(context.Context, *ListBountiesRequest) (*ListBountiesResponse, error)
	ListContributions(context.Context, *ListContributionsRequest) (*ListContributionsResponse, error)
	AcceptBounty(context.Context, *AcceptBountyRequest) (*AcceptBountyResponse, error)
	ResumeAcceptance(context.Context, *ResumeAcceptanceRequest) (*AcceptBountyResponse, error)
	ClaimBounty(context.Context, *ClaimBountyRequest) (*ClaimBountyResponse, error)
	RevealSecret(context.Context, *RevealSecretRequest) (*RevealSecretResponse, error)
	RecoverRelease(context.Context, *RecoverReleaseRequest) (*BountyResponse, error)
	GetPlatformStats(context.Context, *GetPlatformStatsRequest) (*PlatformStatsResponse, error)
}

// RegisterBountyServiceServer registers srv on s
func RegisterBountyServiceServer(s grpc.ServiceRegistrar, srv BountyServiceServer) {
	s.RegisterService(&BountyServiceDesc, srv)
}

// BountyServiceDesc describes BountyService for grpc.ServiceRegistrar
var BountyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BountyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("RegisterAccount", BountyServiceServer.RegisterAccount),
		unaryMethod("GetAccount", BountyServiceServer.GetAccount),
		unaryMethod("ListAccounts", BountyServiceServer.ListAccounts),
		unaryMethod("Deposit", BountyServiceServer.Deposit),
		unaryMethod("SyncBalance", BountyServiceServer.SyncBalance),
		unaryMethod("OpenBounty", BountyServiceServer.OpenBounty),
		unaryMethod("BoostBounty", BountyServiceServer.BoostBounty),
		unaryMethod("CancelBounty", BountyServiceServer.CancelBounty),
		unaryMethod("GetBounty", BountyServiceServer.GetBounty),
		unaryMethod("ListBounties", BountyServiceServer.ListBounties),
		unaryMethod("ListContributions", BountyServiceServer.ListContributions),
		unaryMethod("AcceptBounty", BountyServiceServer.AcceptBounty),
		unaryMethod("ResumeAcceptance", BountyServiceServer.ResumeAcceptance),
		unaryMethod("ClaimBounty", BountyServiceServer.ClaimBounty),
		unaryMethod("RevealSecret", BountyServiceServer.RevealSecret),
		unaryMethod("RecoverRelease", BountyServiceServer.RecoverRelease),
		unaryMethod("GetPlatformStats", BountyServiceServer.GetPlatformStats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bountyflow/v1/bounty.proto",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryMethod adapts a typed server method to a grpc.MethodDesc
func unaryMethod[Req, Resp any](name string, call func(BountyServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BountyServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BountyServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// BountyServiceClient is the client API for BountyService
type BountyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewBountyServiceClient creates a client that speaks the JSON codec over cc
func NewBountyServiceClient(cc grpc.ClientConnInterface) *BountyServiceClient {
	return &BountyServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BountyServiceClient) RegisterAccount(ctx context.Context, in *RegisterAccountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, "RegisterAccount", in, opts)
}

func (c *BountyServiceClient) GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, "GetAccount", in, opts)
}

func (c *BountyServiceClient) ListAccounts(ctx context.Context, in *ListAccountsRequest, opts ...grpc.CallOption) (*ListAccountsResponse, error) {
	return invoke[ListAccountsResponse](ctx, c.cc, "ListAccounts", in, opts)
}

func (c *BountyServiceClient) Deposit(ctx context.Context, in *DepositRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, "Deposit", in, opts)
}

func (c *BountyServiceClient) SyncBalance(ctx context.Context, in *SyncBalanceRequest, opts ...grpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, "SyncBalance", in, opts)
}

func (c *BountyServiceClient) OpenBounty(ctx context.Context, in *OpenBountyRequest, opts ...grpc.CallOption) (*BountyResponse, error) {
	return invoke[BountyResponse](ctx, c.cc, "OpenBounty", in, opts)
}

func (c *BountyServiceClient) BoostBounty(ctx context.Context, in *BoostBountyRequest, opts ...grpc.CallOption) (*BountyResponse, error) {
	return invoke[BountyResponse](ctx, c.cc, "BoostBounty", in, opts)
}

func (c *BountyServiceClient) CancelBounty(ctx context.Context, in *CancelBountyRequest, opts ...grpc.CallOption) (*BountyResponse, error) {
	return invoke[BountyResponse](ctx, c.cc, "CancelBounty", in, opts)
}

func (c *BountyServiceClient) GetBounty(ctx context.Context, in *GetBountyRequest, opts ...grpc.CallOption) (*BountyResponse, error) {
	return invoke[BountyResponse](ctx, c.cc, "GetBounty", in, opts)
}

func (c *BountyServiceClient) ListBounties(ctx context.Context, in *ListBountiesRequest, opts ...grpc.CallOption) (*ListBountiesResponse, error) {
	return invoke[ListBountiesResponse](ctx, c.cc, "ListBounties", in, opts)
}

func (c *BountyServiceClient) ListContributions(ctx context.Context, in *ListContributionsRequest, opts ...grpc.CallOption) (*ListContributionsResponse, error) {
	return invoke[ListContributionsResponse](ctx, c.cc, "ListContributions", in, opts)
}

func (c *BountyServiceClient) AcceptBounty(ctx context.Context, in *AcceptBountyRequest, opts ...grpc.CallOption) (*AcceptBountyResponse, error) {
	return invoke[AcceptBountyResponse](ctx, c.cc, "AcceptBounty", in, opts)
}

func (c *BountyServiceClient) ResumeAcceptance(ctx context.Context, in *ResumeAcceptanceRequest, opts ...grpc.CallOption) (*AcceptBountyResponse, error) {
	return invoke[AcceptBountyResponse](ctx, c.cc, "ResumeAcceptance", in, opts)
}

func (c *BountyServiceClient) ClaimBounty(ctx context.Context, in *ClaimBountyRequest, opts ...grpc.CallOption) (*ClaimBountyResponse, error) {
	return invoke[ClaimBountyResponse](ctx, c.cc, "ClaimBounty", in, opts)
}

func (c *BountyServiceClient) RevealSecret(ctx context.Context, in *RevealSecretRequest, opts ...grpc.CallOption) (*RevealSecretResponse, error) {
	return invoke[RevealSecretResponse](ctx, c.cc, "RevealSecret", in, opts)
}

func (c *BountyServiceClient) RecoverRelease(ctx context.Context, in *RecoverReleaseRequest, opts ...grpc.CallOption) (*BountyResponse, error) {
	return invoke[BountyResponse](ctx, c.cc, "RecoverRelease", in, opts)
}

func (c *BountyServiceClient) GetPlatformStats(ctx context.Context, in *GetPlatformStatsRequest, opts ...grpc.CallOption) (*PlatformStatsResponse, error) {
	return invoke[PlatformStatsResponse](ctx, c.cc, "GetPlatformStats", in, opts)
}
