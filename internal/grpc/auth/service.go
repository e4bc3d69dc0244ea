package auth

import (
	"context"

	"google.golang.org/grpc"

	"shopauth/internal/domain/models"
)

const ServiceName = "auth.Auth"

// Full method names, as seen by interceptors.
const (
	MethodLogin    = "/" + ServiceName + "/Login"
	MethodRegister = "/" + ServiceName + "/Register"
	MethodRefresh  = "/" + ServiceName + "/Refresh"
	MethodRevoke   = "/" + ServiceName + "/Revoke"
	MethodMe       = "/" + ServiceName + "/Me"
)

type MeRequest struct{}

// AuthServer is the server side of the auth.Auth service.
type AuthServer interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error)
	Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error)
	Refresh(ctx context.Context, req *models.RefreshRequest) (*models.AuthResponse, error)
	Revoke(ctx context.Context, req *models.RevokeRequest) (*models.RevokeResponse, error)
	Me(ctx context.Context, req *MeRequest) (*models.UserView, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", MethodLogin, AuthServer.Login),
		unary("Register", MethodRegister, AuthServer.Register),
		unary("Refresh", MethodRefresh, AuthServer.Refresh),
		unary("Revoke", MethodRevoke, AuthServer.Revoke),
		unary("Me", MethodMe, AuthServer.Me),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "auth",
}

func unary[Req, Resp any](
	name string,
	fullMethod string,
	call func(AuthServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			if interceptor == nil {
				return call(srv.(AuthServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServer), ctx, req.(*Req))
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}

// Client calls auth.Auth over a connection using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Login(ctx context.Context, req *models.LoginRequest, opts ...grpc.CallOption) (*models.AuthResponse, error) {
	out := new(models.AuthResponse)
	if err := c.invoke(ctx, MethodLogin, req, out, opts); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) Register(ctx context.Context, req *models.RegisterRequest, opts ...grpc.CallOption) (*models.AuthResponse, error) {
	out := new(models.AuthResponse)
	if err := c.invoke(ctx, MethodRegister, req, out, opts); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) Refresh(ctx context.Context, req *models.RefreshRequest, opts ...grpc.CallOption) (*models.AuthResponse, error) {
	out := new(models.AuthResponse)
	if err := c.invoke(ctx, MethodRefresh, req, out, opts); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) Revoke(ctx context.Context, req *models.RevokeRequest, opts ...grpc.CallOption) (*models.RevokeResponse, error) {
	out := new(models.RevokeResponse)
	if err := c.invoke(ctx, MethodRevoke, req, out, opts); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) Me(ctx context.Context, opts ...grpc.CallOption) (*models.UserView, error) {
	out := new(models.UserView)
	if err := c.invoke(ctx, MethodMe, &MeRequest{}, out, opts); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)

	return c.cc.Invoke(ctx, method, in, out, opts...)
}
