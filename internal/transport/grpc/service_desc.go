package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "viewings.v1.Scheduling"

func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// SchedulingServer is the handler set behind ServiceDesc.
type SchedulingServer interface {
	RequestAppointment(context.Context, *RequestAppointmentRequest) (*AppointmentResponse, error)
	ListMyAppointments(context.Context, *ListMyAppointmentsRequest) (*ListAppointmentsResponse, error)
	ListOwnerAppointments(context.Context, *ListOwnerAppointmentsRequest) (*ListAppointmentsResponse, error)
	OwnerAct(context.Context, *OwnerActRequest) (*AppointmentResponse, error)
	ConfirmReschedule(context.Context, *AppointmentRef) (*AppointmentResponse, error)
	CancelAppointment(context.Context, *AppointmentRef) (*CancelAppointmentResponse, error)
	GetAvailability(context.Context, *GetAvailabilityRequest) (*AvailabilityResponse, error)
	SetAvailability(context.Context, *SetAvailabilityRequest) (*AvailabilityResponse, error)
	GetBookingPolicy(context.Context, *GetBookingPolicyRequest) (*BookingPolicyResponse, error)
	SetBookingPolicy(context.Context, *SetBookingPolicyRequest) (*BookingPolicyResponse, error)
	ListTransitions(context.Context, *AppointmentRef) (*ListTransitionsResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("RequestAppointment", SchedulingServer.RequestAppointment),
		unary("ListMyAppointments", SchedulingServer.ListMyAppointments),
		unary("ListOwnerAppointments", SchedulingServer.ListOwnerAppointments),
		unary("OwnerAct", SchedulingServer.OwnerAct),
		unary("ConfirmReschedule", SchedulingServer.ConfirmReschedule),
		unary("CancelAppointment", SchedulingServer.CancelAppointment),
		unary("GetAvailability", SchedulingServer.GetAvailability),
		unary("SetAvailability", SchedulingServer.SetAvailability),
		unary("GetBookingPolicy", SchedulingServer.GetBookingPolicy),
		unary("SetBookingPolicy", SchedulingServer.SetBookingPolicy),
		unary("ListTransitions", SchedulingServer.ListTransitions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "viewings/v1/scheduling",
}

func RegisterSchedulingServer(s grpc.ServiceRegistrar, srv SchedulingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(SchedulingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(SchedulingServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}
