package serve

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/mdp/qrterminal/v3"
	"github.com/moby/moby/pkg/namesgenerator"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forestnode-io/upnpstack/pkg/commands"
	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/events"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
	"github.com/forestnode-io/upnpstack/pkg/upnp/dv"
	"github.com/forestnode-io/upnpstack/pkg/upnp/services"
	"github.com/forestnode-io/upnpstack/pkg/version"
)

const (
	DeviceType   = "urn:schemas-upnp-org:device:MediaRenderer:1"
	Manufacturer = "forestnode"
)

func New(config *configuration.Root) *Cmd {
	return &Cmd{
		config: config,
	}
}

type Cmd struct {
	cobraCommand *cobra.Command
	config       *configuration.Root

	qrCode bool
}

func (c *Cmd) Cobra() *cobra.Command {
	if c.cobraCommand != nil {
		return c.cobraCommand
	}

	c.cobraCommand = &cobra.Command{
		Use:   "serve",
		Short: "Host a media renderer with a RenderingControl service",
		Long: `Host a media renderer with a RenderingControl service.
The device is announced over SSDP and answers searches until serve is interrupted.
Volume and mute of the Master channel are kept in memory, changes are evented through LastChange.`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}

	c.cobraCommand.Flags().BoolVarP(&c.qrCode, "qr-code", "Q", false, "Print a QR code of the description URL to stderr.")

	return c.cobraCommand
}

func (c *Cmd) run(cmd *cobra.Command, args []string) error {
	var (
		ctx    = cmd.Context()
		log    = zerolog.Ctx(ctx)
		config = &c.config.Server
	)

	device := dv.DeviceInfo{
		UUID:         config.UUID,
		DeviceType:   DeviceType,
		FriendlyName: config.FriendlyName,
		Manufacturer: Manufacturer,
		ModelName:    version.Product,
	}
	if device.UUID == "" {
		device.UUID = uuid.New().String()
	}
	if device.FriendlyName == "" {
		device.FriendlyName = namesgenerator.GetRandomName(0)
	}

	m, err := commands.Metrics(ctx, &c.config.Metrics, false)
	if err != nil {
		return err
	}

	rc := services.NewRenderingControl()
	svc, err := rc.Service()
	if err != nil {
		return err
	}

	opts := []dv.Option{
		dv.WithControlPrefix(config.ControlPrefix),
		dv.WithDescriptionPrefix(config.DescriptionPrefix),
		dv.WithEventPrefix(config.EventPrefix),
		dv.WithServerHeader(version.MachineInfo()),
		dv.WithMaxRequestSize(config.MaxRequestBytes()),
		dv.WithMetrics(m),
	}
	if corsOpts, ok := c.config.CORS.Options(); ok {
		opts = append(opts, dv.WithCORS(corsOpts))
	}
	server := dv.NewServer(ctx, device, opts...)
	server.AddService(svc)
	rc.PublishTo(server.Events())

	l, err := net.Listen("tcp", net.JoinHostPort(config.Host, strconv.Itoa(config.Port)))
	if err != nil {
		return fmt.Errorf("error listening: %w", err)
	}
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	location := LocationProvider(config.Host, port, server.DescriptionPath())

	adv, err := Advertise(ctx, Advertisements(device, []*upnp.Service{svc}), location, c.config.SSDP.MaxAge)
	if err != nil {
		return err
	}
	defer adv.Close(ctx)

	descriptionURL := location(nil, nil)
	if c.qrCode {
		writeQRCode(cmd.ErrOrStderr(), descriptionURL)
	}
	events.Raise(ctx, &events.Listening{
		DescriptionURL: descriptionURL,
		UUID:           device.UUID,
		FriendlyName:   device.FriendlyName,
		Services:       []string{svc.TypeVersionURN()},
	})
	log.Info().
		Str("address", l.Addr().String()).
		Str("uuid", device.UUID).
		Msg("serving device")

	if err := server.Serve(ctx, l); err != nil {
		return err
	}
	events.Success(ctx)

	return nil
}

func writeQRCode(w io.Writer, url string) {
	qrConf := qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    w,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	}
	fmt.Fprintln(w, url)
	qrterminal.GenerateWithConfig(url, qrConf)
}
